package scanning

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that failed
type Stage string

const (
	StageRender    Stage = "render"
	StageRecognize Stage = "recognize"
)

var (
	// ErrRender matches any StageError raised while rendering
	ErrRender = errors.New("page rendering failed")
	// ErrRecognition matches any StageError raised while recognizing text
	ErrRecognition = errors.New("text recognition failed")
)

// StageError is a fatal pipeline failure tagged with its stage
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the stage sentinels
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrRender:
		return e.Stage == StageRender
	case ErrRecognition:
		return e.Stage == StageRecognize
	}
	return false
}
