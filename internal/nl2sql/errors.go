package nl2sql

import "errors"

var (
	ErrEmptySearch            = errors.New("search text is empty")
	ErrTranslationUnavailable = errors.New("translation unavailable")
	ErrTranslationEmpty       = errors.New("translation produced no statement")
)
