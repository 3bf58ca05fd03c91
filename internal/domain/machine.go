package domain

// CanTransition проверяет, допустим ли переход current → target.
//
// Из CANCELLED разрешены только UNDEFINED и ENQUEUED (повторная постановка
// в очередь). Из любого другого состояния разрешены все переходы.
func CanTransition(current, target State) bool {
	if current.Kind != StateCancelled {
		return true
	}
	return target.Kind == StateUndefined || target.Kind == StateEnqueued
}
