package stream

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		trace    []Type
		wantErr  error
		terminal bool
	}{
		{
			name: "full successful generation",
			trace: []Type{
				TypeSourcesRetrieved, TypeGenerationStart,
				TypeContentChunk, TypeCitation, TypeContentChunk,
				TypeGenerationComplete,
			},
			terminal: true,
		},
		{
			name:     "error before retrieval completes",
			trace:    []Type{TypeError},
			terminal: true,
		},
		{
			name:     "error after sources",
			trace:    []Type{TypeSourcesRetrieved, TypeError},
			terminal: true,
		},
		{
			name: "heartbeats anywhere before terminal",
			trace: []Type{
				TypeHeartbeat, TypeSourcesRetrieved, TypeHeartbeat,
				TypeGenerationStart, TypeHeartbeat, TypeContentChunk,
				TypeGenerationComplete,
			},
			terminal: true,
		},
		{
			name:  "incomplete trace is valid but not terminal",
			trace: []Type{TypeSourcesRetrieved, TypeGenerationStart, TypeContentChunk},
		},
		{
			name:    "chunk before start",
			trace:   []Type{TypeSourcesRetrieved, TypeContentChunk},
			wantErr: ErrOutOfOrder,
		},
		{
			name:    "citation before start",
			trace:   []Type{TypeCitation},
			wantErr: ErrOutOfOrder,
		},
		{
			name:    "complete before start",
			trace:   []Type{TypeSourcesRetrieved, TypeGenerationComplete},
			wantErr: ErrOutOfOrder,
		},
		{
			name:    "duplicate start",
			trace:   []Type{TypeGenerationStart, TypeGenerationStart},
			wantErr: ErrOutOfOrder,
		},
		{
			name:    "sources after start",
			trace:   []Type{TypeGenerationStart, TypeSourcesRetrieved},
			wantErr: ErrOutOfOrder,
		},
		{
			name:    "duplicate sources",
			trace:   []Type{TypeSourcesRetrieved, TypeSourcesRetrieved},
			wantErr: ErrOutOfOrder,
		},
		{
			name:    "chunk after complete",
			trace:   []Type{TypeGenerationStart, TypeGenerationComplete, TypeContentChunk},
			wantErr: ErrTerminated,
		},
		{
			name:    "heartbeat after error",
			trace:   []Type{TypeError, TypeHeartbeat},
			wantErr: ErrTerminated,
		},
		{
			name:    "double terminal",
			trace:   []Type{TypeGenerationStart, TypeGenerationComplete, TypeError},
			wantErr: ErrTerminated,
		},
		{
			name:    "unknown type",
			trace:   []Type{Type("bogus")},
			wantErr: ErrOutOfOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seq, err := Validate(tt.trace)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
			if seq.Terminal() != tt.terminal {
				t.Errorf("Terminal() = %v, want %v", seq.Terminal(), tt.terminal)
			}
		})
	}
}
