package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sales-agent/internal/usecase"
)

const (
	cmdQuit    = "/sair"
	cmdRestart = "/nova"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long:  "Starts an interactive session. Type " + cmdRestart + " to start a new purchase or " + cmdQuit + " to leave.",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return chatLoop(cmd, a.Service, cmd.InOrStdin(), cmd.OutOrStdout())
}

type chatService interface {
	StartSession(ctx context.Context, in usecase.StartInput) (usecase.TurnOutput, error)
	SubmitTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

func chatLoop(cmd *cobra.Command, svc chatService, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()

	turn, err := svc.StartSession(ctx, usecase.StartInput{})
	if err != nil {
		return err
	}
	printTurn(out, turn)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case cmdQuit:
			return nil
		case cmdRestart:
			next, err := svc.StartSession(ctx, usecase.StartInput{PreviousSessionID: turn.SessionID})
			if err != nil {
				return err
			}
			turn = next
			printTurn(out, turn)
			continue
		}

		next, err := svc.SubmitTurn(ctx, usecase.TurnInput{SessionID: turn.SessionID, Text: line})
		if usecase.IsEmptyInput(err) {
			fmt.Fprintln(out, "Por favor, diga algo.")
			continue
		}
		if usecase.CodeOf(err) == usecase.ErrorInvalidInput {
			fmt.Fprintln(out, "Mensagem muito longa, tente resumir.")
			continue
		}
		if err != nil {
			return err
		}
		turn = next
		printTurn(out, turn)
	}
}

func printTurn(out io.Writer, t usecase.TurnOutput) {
	fmt.Fprintf(out, "[%s] %s\n", t.State, t.Reply)
}
