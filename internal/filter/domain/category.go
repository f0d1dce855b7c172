package domain

import (
	"fmt"
	"strings"
)

// Category identifies one of the independent filter classes. Each category
// carries its own enable flag and its own allow/block lists, and is evaluated
// in a fixed order: Account, then Username, then Keyword.
type Category uint8

const (
	// CategoryAccount matches on the author's handle.
	CategoryAccount Category = iota
	// CategoryUsername matches on the author's resolved display name.
	CategoryUsername
	// CategoryKeyword matches on substrings of the record body text.
	CategoryKeyword
)

// Categories lists all filter categories in evaluation order.
var Categories = []Category{CategoryAccount, CategoryUsername, CategoryKeyword}

// String returns a stable string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryAccount:
		return "account"
	case CategoryUsername:
		return "username"
	case CategoryKeyword:
		return "keyword"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// ParseCategory converts a string into a Category.
// Accepts: "account", "username", "keyword" (case-insensitive).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "account":
		return CategoryAccount, nil
	case "username":
		return CategoryUsername, nil
	case "keyword":
		return CategoryKeyword, nil
	default:
		return 0, fmt.Errorf("unsupported Category: %q", s)
	}
}

// Valid reports whether the category is one of the defined filter classes.
func (c Category) Valid() bool {
	switch c {
	case CategoryAccount, CategoryUsername, CategoryKeyword:
		return true
	default:
		return false
	}
}
