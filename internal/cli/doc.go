// Package cli реализует инструмент командной строки загрузчика.
//
// # Обзор
//
// CLI — клиентская утилита для работы с HTTP API демона.
// Не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и чтение SSE потоков
// (WatchTask, WatchTasks, WatchResults).
//
//	client := cli.NewClient("http://localhost:8080")
//	tasks, err := client.ListDownloads(nil)
//
// ## Output
//
// Форматирование вывода:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//   - YAML — с флагом --yaml
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
// enqueue, list, show, cancel [--all], rm [--all] [--delete-file],
// watch (Bubble Tea прогресс или --plain), results, stats.
// Фабрики принимают clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
