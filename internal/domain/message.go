package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

const (
	MaxTextLength     = 4000
	MaxMediaURLLength = 2048
)

var (
	ErrUnknownContentType = errors.New("unknown content type")
	ErrEmptyContent       = errors.New("message content empty")
	ErrContentTooLong     = errors.New("message content too long")
	ErrAmbiguousContent   = errors.New("message must carry exactly one of text or media")
)

// GroupMessage is a chat message posted to a room. ID and CreatedAt are
// assigned by the store.
type GroupMessage struct {
	ID          string      `json:"id"`
	Room        RoomID      `json:"room"`
	Sender      UserID      `json:"sender"`
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content,omitempty"`
	MediaURL    string      `json:"media_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewGroupMessage validates the content shape: text messages carry only
// Content, image messages carry only MediaURL.
func NewGroupMessage(room RoomID, sender UserID, ct ContentType, content, mediaURL string) (*GroupMessage, error) {
	content = strings.TrimSpace(content)
	mediaURL = strings.TrimSpace(mediaURL)

	switch ct {
	case ContentText:
		if mediaURL != "" {
			return nil, ErrAmbiguousContent
		}
		if content == "" {
			return nil, ErrEmptyContent
		}
		if utf8.RuneCountInString(content) > MaxTextLength {
			return nil, ErrContentTooLong
		}
	case ContentImage:
		if content != "" {
			return nil, ErrAmbiguousContent
		}
		if mediaURL == "" {
			return nil, ErrEmptyContent
		}
		if len(mediaURL) > MaxMediaURLLength {
			return nil, ErrContentTooLong
		}
	default:
		return nil, ErrUnknownContentType
	}

	return &GroupMessage{
		Room:        room,
		Sender:      sender,
		ContentType: ct,
		Content:     content,
		MediaURL:    mediaURL,
	}, nil
}
