package mail

// Categories a mailbox listing can be filtered by. Unknown names list the inbox.
const (
	CategoryInbox      = "inbox"
	CategoryDrafts     = "drafts"
	CategorySent       = "sent"
	CategoryJunk       = "junk"
	CategoryTrash      = "trash"
	CategoryArchive    = "archive"
	CategorySocial     = "social"
	CategoryUpdates    = "updates"
	CategoryPromotions = "promotions"
)

var categoryQueries = map[string]string{
	CategoryInbox:      "in:inbox -in:draft -in:sent -in:trash -in:spam",
	CategoryDrafts:     "in:draft",
	CategorySent:       "in:sent",
	CategoryJunk:       "in:spam",
	CategoryTrash:      "in:trash",
	CategoryArchive:    "-in:inbox -in:draft -in:sent -in:trash -in:spam",
	CategorySocial:     "category:social in:inbox -in:draft",
	CategoryUpdates:    "category:updates in:inbox -in:draft",
	CategoryPromotions: "category:promotions in:inbox -in:draft",
}

func queryFor(category string) string {
	if q, ok := categoryQueries[category]; ok {
		return q
	}
	return categoryQueries[CategoryInbox]
}

// Message is one mailbox entry as the web client renders it.
type Message struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"threadId"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Subject     string           `json:"subject"`
	Text        string           `json:"text"`
	Date        string           `json:"date"`
	Read        bool             `json:"read"`
	Labels      []string         `json:"labels"`
	To          string           `json:"to"`
	Cc          string           `json:"cc"`
	ReplyTo     string           `json:"replyTo"`
	Attachments []AttachmentInfo `json:"attachments"`
}

type AttachmentInfo struct {
	ID       string `json:"attachmentId"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type Page struct {
	Messages      []Message `json:"messages"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// Attachment is an outgoing file; Content is standard base64.
type Attachment struct {
	Name    string `json:"name" validate:"required,max=255"`
	Type    string `json:"type" validate:"max=255"`
	Content string `json:"content" validate:"required,base64"`
}

type Draft struct {
	To          string       `json:"to" validate:"required,max=2000"`
	Cc          string       `json:"cc" validate:"max=2000"`
	Subject     string       `json:"subject" validate:"max=998"`
	Content     string       `json:"content" validate:"required"`
	Attachments []Attachment `json:"attachments" validate:"max=10,dive"`
}

type Reply struct {
	Content     string       `json:"content" validate:"required"`
	Attachments []Attachment `json:"attachments" validate:"max=10,dive"`
}

type Sent struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}
