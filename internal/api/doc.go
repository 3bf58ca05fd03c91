// Package api содержит HTTP API сервер загрузчика.
//
// Структура:
//   - handler.go          — Handler с DI (загрузчик, logger)
//   - routes.go           — chi роутер и регистрация маршрутов
//   - middleware.go       — middleware (request id, logging, recovery)
//   - response.go         — унифицированные JSON-ответы и отображение ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - download_handler.go — обработчики для /downloads и /stats
//   - events.go           — SSE потоки наблюдения и результатов
//
// Маршруты (/api/v1):
//
//	POST   /downloads                 поставить в очередь (202)
//	GET    /downloads[?ids=a,b]       список задач
//	GET    /downloads/{id}            задача
//	POST   /downloads/{id}/cancel     отменить задачу
//	POST   /downloads/cancel          отменить все
//	DELETE /downloads/{id}            удалить (?delete_file=true)
//	DELETE /downloads                 удалить все (?delete_files=true)
//	GET    /downloads/{id}/events     SSE: изменения задачи
//	GET    /events?ids=a,b            SSE: снимки набора задач
//	GET    /results                   SSE: финальные результаты
//	GET    /stats                     загрузка планировщика
package api
