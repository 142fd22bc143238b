// Package errs defines the failure taxonomy shared by the voice pipeline.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindWakeWord           Kind = "wake_word"
	KindSpeechProcessing   Kind = "speech_processing"
	KindRAG                Kind = "rag"
	KindVectorStore        Kind = "vector_store"
	KindDocumentProcessing Kind = "document_processing"
)

// ErrNoRelevantDocuments is a control-flow signal from retrieval. Callers of the
// RAG orchestrator convert it into the default response; it is never user-facing.
var ErrNoRelevantDocuments = errors.New("no relevant documents found for the query")

// Error wraps a capability failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindRAG}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newError(kind Kind, msg string, err error) error {
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind && msg == "" {
		return err
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func WakeWord(msg string, err error) error    { return newError(KindWakeWord, msg, err) }
func Speech(msg string, err error) error      { return newError(KindSpeechProcessing, msg, err) }
func RAG(msg string, err error) error         { return newError(KindRAG, msg, err) }
func VectorStore(msg string, err error) error { return newError(KindVectorStore, msg, err) }
func Document(msg string, err error) error    { return newError(KindDocumentProcessing, msg, err) }

// KindOf returns the outermost taxonomy kind in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinels usable with errors.Is to test a kind.
var (
	ErrWakeWord           = &Error{Kind: KindWakeWord}
	ErrSpeechProcessing   = &Error{Kind: KindSpeechProcessing}
	ErrRAG                = &Error{Kind: KindRAG}
	ErrVectorStore        = &Error{Kind: KindVectorStore}
	ErrDocumentProcessing = &Error{Kind: KindDocumentProcessing}
)
