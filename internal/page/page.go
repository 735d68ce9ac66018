// Package page identifies books and the pages inside them.
package page

import "fmt"

// ID identifies a page independently of any in-memory object.
type ID struct {
	BookID     string
	PageNumber int
}

func (id ID) String() string {
	return fmt.Sprintf("%s#%d", id.BookID, id.PageNumber)
}

// Less orders pages by book then page number.
func (id ID) Less(other ID) bool {
	if id.BookID != other.BookID {
		return id.BookID < other.BookID
	}
	return id.PageNumber < other.PageNumber
}

// Metadata describes a page. Width and Height are zero when the source does
// not know them before decoding.
type Metadata struct {
	BookID     string
	PageNumber int
	FileName   string
	Width      int
	Height     int
}

func (m Metadata) ID() ID {
	return ID{BookID: m.BookID, PageNumber: m.PageNumber}
}

// Book is an ordered list of pages.
type Book struct {
	ID    string
	Title string
	Pages []Metadata
}

// BookState is the reader's view of the current book and its neighbours.
// StartPage is the 1-based page the reader should open on.
type BookState struct {
	Current   Book
	Previous  *Book
	Next      *Book
	StartPage int
}
