package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-agent/internal/app"
	"sales-agent/internal/domain"
	"sales-agent/internal/usecase"
)

func TestRootCommand_Help(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"--help"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "serve")
	assert.Contains(t, buf.String(), "chat")
	assert.Contains(t, buf.String(), "snapshot")
}

func TestServe_MissingConfigFile(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"serve", "--config", "/nonexistent/sales.yaml"})

	assert.Error(t, root.Execute())
}

func TestSnapshot_RequiresTable(t *testing.T) {
	t.Setenv("SALES_LLM_GEMINI_API_KEY", "test-key")
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"snapshot", "s-1"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot table")
}

func TestChat_GreetsAndExitsOnEOF(t *testing.T) {
	t.Setenv("SALES_LLM_GEMINI_API_KEY", "test-key")
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetIn(strings.NewReader(""))
	root.SetArgs([]string{"chat"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "[GREETING]")
	assert.Contains(t, buf.String(), "Bem-vindo")
}

type scriptedService struct {
	starts []usecase.StartInput
	turns  []usecase.TurnInput
	err    error
}

func (s *scriptedService) StartSession(_ context.Context, in usecase.StartInput) (usecase.TurnOutput, error) {
	s.starts = append(s.starts, in)
	id := "s-" + string(rune('0'+len(s.starts)))
	return usecase.TurnOutput{SessionID: id, Reply: "Olá!", State: domain.StateGreeting}, nil
}

func (s *scriptedService) SubmitTurn(_ context.Context, in usecase.TurnInput) (usecase.TurnOutput, error) {
	s.turns = append(s.turns, in)
	if strings.TrimSpace(in.Text) == "" {
		return usecase.TurnOutput{}, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonEmptyInput}
	}
	if s.err != nil {
		return usecase.TurnOutput{}, s.err
	}
	return usecase.TurnOutput{SessionID: in.SessionID, Reply: "eco: " + in.Text, State: domain.StateBrowsing}, nil
}

func TestChatLoop_Commands(t *testing.T) {
	svc := &scriptedService{}
	out := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	in := strings.NewReader("oi\n\n/nova\nde novo\n/sair\nignorado\n")
	require.NoError(t, chatLoop(cmd, svc, in, out))

	require.Len(t, svc.starts, 2)
	require.Equal(t, "s-1", svc.starts[1].PreviousSessionID)
	require.Len(t, svc.turns, 3)
	require.Equal(t, "s-2", svc.turns[2].SessionID)
	assert.Contains(t, out.String(), "eco: oi")
	assert.Contains(t, out.String(), "Por favor, diga algo.")
	assert.NotContains(t, out.String(), "ignorado")
}

type fakeSnapshots struct {
	byID      map[string]domain.Snapshot
	models    []string
	lastModel string
	released  bool
}

func (f *fakeSnapshots) GetSnapshot(_ context.Context, id string) (*domain.Snapshot, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeSnapshots) ListModels(context.Context) ([]string, error) {
	return f.models, nil
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, model string) ([]domain.Snapshot, error) {
	f.lastModel = model
	var out []domain.Snapshot
	for _, s := range f.byID {
		if model == "" || s.ModelUsed == model {
			out = append(out, s)
		}
	}
	return out, nil
}

func withSnapshots(t *testing.T, f *fakeSnapshots) {
	t.Helper()
	orig := openSnapshots
	openSnapshots = func(*cobra.Command) (app.SnapshotReader, func(), error) {
		return f, func() { f.released = true }, nil
	}
	t.Cleanup(func() { openSnapshots = orig })
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func sampleSnapshots() *fakeSnapshots {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &fakeSnapshots{
		byID: map[string]domain.Snapshot{
			"s-1": {SessionID: "s-1", FinalState: domain.StateFinalized, ModelUsed: "model-a", Timestamp: ts, CartItemCount: 2, TotalValue: decimal.RequireFromString("5998")},
			"s-2": {SessionID: "s-2", FinalState: domain.StateBrowsing, ModelUsed: "model-b", Timestamp: ts},
		},
		models: []string{"model-a", "model-b"},
	}
}

func TestSnapshot_Show(t *testing.T) {
	f := sampleSnapshots()
	withSnapshots(t, f)

	out, err := runRoot(t, "snapshot", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "FINALIZED")
	assert.Contains(t, out, "5998.00")
	assert.True(t, f.released)

	_, err = runRoot(t, "snapshot", "missing")
	require.ErrorContains(t, err, "no snapshot for session missing")
}

func TestSnapshot_ListFiltersByModel(t *testing.T) {
	f := sampleSnapshots()
	withSnapshots(t, f)

	out, err := runRoot(t, "snapshot", "list", "--model", "model-b")
	require.NoError(t, err)
	assert.Equal(t, "model-b", f.lastModel)
	assert.Contains(t, out, "s-2")
	assert.NotContains(t, out, "s-1")
}

func TestSnapshot_Models(t *testing.T) {
	withSnapshots(t, sampleSnapshots())

	out, err := runRoot(t, "snapshot", "models")
	require.NoError(t, err)
	assert.Equal(t, "model-a\nmodel-b\n", out)
}
