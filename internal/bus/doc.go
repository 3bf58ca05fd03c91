// Package bus реализует широковещательные каналы внутри процесса.
//
// Topic рассылает каждое опубликованное значение всем текущим подписчикам.
// Публикация никогда не блокируется: у каждого подписчика ограниченный
// буфер, при переполнении вытесняется самое старое значение. Для одного
// подписчика порядок значений совпадает с порядком публикации.
// Значения, опубликованные до подписки, не повторяются.
//
// Commands — шина команд загрузчика поверх Topic.
package bus
