package assistant

// Wire types for the Azure AI Projects agents surface. Field sets are
// limited to what the portal reads.

// Thread is a server-side conversation context.
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Run executes an agent against a thread.
type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    string    `json:"status"`
	LastError *RunError `json:"last_error,omitempty"`
}

// RunError is the failure detail attached to a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run statuses the portal distinguishes. Everything else is "still going".
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusCancelled  = "cancelled"
	RunStatusExpired    = "expired"
)

// Message is one thread message.
type Message struct {
	ID      string           `json:"id"`
	Role    string           `json:"role"`
	Content []MessageContent `json:"content"`
}

// MessageContent is one content block; the portal only consumes text
// blocks.
type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

// MessageText carries the text value and its citation annotations.
type MessageText struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation marks a cited span inside a message text.
type Annotation struct {
	Type       string        `json:"type"`
	Text       string        `json:"text"`
	StartIndex int           `json:"start_index"`
	EndIndex   int           `json:"end_index"`
	FileCite   *FileCitation `json:"file_citation,omitempty"`
	URLCite    *URLCitation  `json:"url_citation,omitempty"`
}

// FileCitation points at an uploaded or vector-store file.
type FileCitation struct {
	FileID string `json:"file_id"`
}

// URLCitation points at a web source.
type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// File is an uploaded file's metadata.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Purpose  string `json:"purpose"`
}

// AgentInfo is the agent definition subset the portal reads and updates.
type AgentInfo struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Model         string         `json:"model,omitempty"`
	Instructions  string         `json:"instructions,omitempty"`
	ToolResources *ToolResources `json:"tool_resources,omitempty"`
}

// ToolResources holds per-tool attachments.
type ToolResources struct {
	CodeInterpreter *CodeInterpreterResource `json:"code_interpreter,omitempty"`
	FileSearch      *FileSearchResource      `json:"file_search,omitempty"`
}

// CodeInterpreterResource lists files available to the code interpreter.
type CodeInterpreterResource struct {
	FileIDs []string `json:"file_ids"`
}

// FileSearchResource lists attached vector stores.
type FileSearchResource struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
