// Package downloader — оркестратор задач загрузки.
//
// Downloader принимает запросы на загрузку, хранит их состояние в Store
// и выполняет не более MaxConcurrent загрузок одновременно.
//
// Поток управления:
//
//	Enqueue → Store(ENQUEUED) → шина команд (ENQUEUE) → очередь допуска
//	       → слот → pipeline → Transport → throttler → Store(DOWNLOADING)
//	       → Store(COMPLETED | FAILED) → поток результатов
//
// Отмена:
//
//	Cancel → Store(CANCELLED) → шина команд (CANCEL) → pipeline → Abort
//	       → поток результатов (CANCELLED)
//
// Компоненты:
//   - scheduler.go — FIFO очередь допуска и слоты
//   - pipeline.go — выполнение одной загрузки
//   - throttle.go — прореживание прогресса
//   - observe.go — живые представления задач и поток результатов
//   - operations.go — публичные операции
//
// Каждый pipeline, дошедший до запуска транспорта, публикует ровно один Result.
package downloader
