package provider

// Location is a source range returned for definition, references and
// highlight requests. Lines and columns are zero-based; columns count UTF-16
// code units when the adapter knows the file text.
type Location struct {
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line"`
	EndColumn int    `json:"end_column"`
}
