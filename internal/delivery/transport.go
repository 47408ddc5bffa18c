package delivery

import "context"

// Transport is the conversational surface delivery depends on: four
// primitives, each of which may fail and must be treated as fallible.
type Transport interface {
	// SendText sends a text message and returns its message id.
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	// SendVideo sends a local video file inline.
	SendVideo(ctx context.Context, chatID int64, path string) error
	// EditText replaces the text of a previously sent message.
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
