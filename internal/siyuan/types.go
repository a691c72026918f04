package siyuan

// Notebook is a top-level container in the kernel.
type Notebook struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

// ChildBlock is one entry returned by the child-block listing.
type ChildBlock struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// SQLBlock is one row returned by the SQL query endpoint. Only the
// columns this client selects are mapped.
type SQLBlock struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	IAL     string `json:"ial"`
	Created string `json:"created"`
}

// Attribute view column (key) types used by this client.
const (
	KeyTypeBlock = "block"
	KeyTypeDate  = "date"
	KeyTypeText  = "text"
)

// AttributeViewKey describes one column of an attribute view.
type AttributeViewKey struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// AttributeValue is one cell value in a detached attribute view row.
// Exactly one of Block, Text or Date is set, matching Type.
type AttributeValue struct {
	KeyID string      `json:"keyID"`
	Type  string      `json:"type"`
	Block *ValueBlock `json:"block,omitempty"`
	Text  *ValueText  `json:"text,omitempty"`
	Date  *ValueDate  `json:"date,omitempty"`
}

// ValueBlock carries the primary-key (block) cell content.
type ValueBlock struct {
	Content string `json:"content"`
}

// ValueText carries a text cell content.
type ValueText struct {
	Content string `json:"content"`
}

// ValueDate carries a date cell as unix milliseconds.
type ValueDate struct {
	Content    int64 `json:"content"`
	IsNotEmpty bool  `json:"isNotEmpty"`
}
