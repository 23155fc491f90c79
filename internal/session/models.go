package session

// Summary is the list view of a persisted session.
type Summary struct {
	ID               string
	Query            string
	Phase            string
	Iteration        int
	IsComplete       bool
	CompletionReason *string
	CreatedAt        *string
	UpdatedAt        *string
}

// Report is a finished research report.
type Report struct {
	SessionID     string
	Title         string
	BodyMarkdown  string
	WordCount     int
	SectionCount  int
	CitationCount int
	GeneratedAt   *string
}

// Stats summarizes the store contents.
type Stats struct {
	Sessions  int
	Completed int
	Reports   int
}
