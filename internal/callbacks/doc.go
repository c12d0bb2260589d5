// Package callbacks — обработчики, на которые ссылаются привязки
// топологии.
//
// Обработчик получает доставленное сообщение (payload, routing metadata,
// операция ack) и сам решает, когда подтверждать. Диспетчер содержимое
// не интерпретирует. Ошибка обработчика роняет worker-процесс:
// корректность обработки — ответственность обработчика, не транспорта.
//
// Регистрируются:
//   - instance_event — события compute backend'а → статус инстанса в БД
//   - network_event  — события сетевого linka → состояние сети в БД
//   - notify_email   — запросы уведомлений (только лог, доставка почты
//     вне ядра)
//   - log_message    — debug firehose: логирует всё подряд
//   - discard        — подтверждает и выбрасывает (drain-queue)
package callbacks
