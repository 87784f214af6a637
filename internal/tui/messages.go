package tui

// RowUpdateMsg updates a single row's fields by column name.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// StatusUpdate builds a RowUpdateMsg that sets the STATUS and DETAIL
// columns of one row.
func StatusUpdate(key, status, detail string) RowUpdateMsg {
	return RowUpdateMsg{Key: key, Fields: map[string]string{ColStatus: status, ColDetail: detail}}
}

// WorkDoneMsg signals that the install, download or dependency work
// behind the table has finished.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit and RunWithWork
// returns Err.
type ErrorMsg struct {
	Err error
}
