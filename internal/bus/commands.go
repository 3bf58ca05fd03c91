package bus

import (
	"context"
	"errors"

	"github.com/shaiso/Downloader/internal/domain"
)

// ErrNoReceiver — у шины нет подписчика, принимающего ENQUEUE.
var ErrNoReceiver = errors.New("no enqueue receiver")

// Commands — шина команд внутри одного процесса.
//
// ENQUEUE должен дойти до планировщика, поэтому планировщик подписывается
// через SubscribeLossless. CANCEL и CANCEL_ALL устаревают сразу после
// отправки и могут вытесняться у медленных подписчиков.
type Commands struct {
	topic *Topic[domain.Command]
}

// NewCommands создаёт шину с буфером buffer на подписчика.
func NewCommands(buffer int) *Commands {
	return &Commands{topic: NewTopic[domain.Command](buffer)}
}

// Send рассылает команду всем подписчикам. Не блокируется.
// ENQUEUE без подписчика без потерь отклоняется с ErrNoReceiver.
func (c *Commands) Send(_ context.Context, cmd domain.Command) error {
	if cmd.Kind == domain.CommandEnqueue && c.topic.LosslessSubscribers() == 0 {
		return ErrNoReceiver
	}
	c.topic.Publish(cmd)
	return nil
}

// Subscribe подписывается на все будущие команды.
// При переполнении буфера теряются самые старые команды.
func (c *Commands) Subscribe() *Subscription[domain.Command] {
	return c.topic.Subscribe()
}

// SubscribeLossless подписывается на все будущие команды без потерь.
func (c *Commands) SubscribeLossless() *Subscription[domain.Command] {
	return c.topic.SubscribeLossless()
}

// Close закрывает шину и все подписки.
func (c *Commands) Close() {
	c.topic.Close()
}
