// Package transport выполняет сетевую передачу файлов.
//
// Транспорт запускает передачу для запроса и возвращает Transfer —
// хэндл с потоком прогресса, сигналом завершения и возможностью прервать
// передачу. Реализации:
//   - http.go — HTTP(S) загрузка во временный файл с переименованием
//   - blob.go — чтение объекта из бакета gocloud (s3://, gs://, file://, mem://)
//   - router.go — выбор транспорта по схеме URL
//   - manual.go — ручной транспорт для тестов
package transport
