// Package handler exposes the sales service over API Gateway proxy events.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"sales-agent/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	errorNotFound     = "NOT_FOUND"
	errorMethod       = "METHOD_NOT_ALLOWED"
)

// SalesUseCase is the subset of usecase.SalesService the handler drives.
type SalesUseCase interface {
	StartSession(ctx context.Context, in usecase.StartInput) (usecase.TurnOutput, error)
	SubmitTurn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

type startRequest struct {
	PreviousSessionID string `json:"previous_session_id"`
}

type turnRequest struct {
	UserInput string `json:"user_input"`
}

type turnResponse struct {
	SessionID   string `json:"session_id"`
	BotResponse string `json:"bot_response"`
	ChatState   string `json:"chat_state"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Handler struct {
	uc SalesUseCase
}

func NewHandler(uc SalesUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Handle routes POST /sessions and POST /sessions/{id}/turns. Any stage or
// base-path prefix in front of "sessions" is ignored.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := slog.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	sessionID, isTurn, ok := route(req)
	if !ok {
		return jsonResponse(http.StatusNotFound, corrID, errorResponse{Error: errorNotFound, Message: "Recurso não encontrado."}), nil
	}
	if !strings.EqualFold(req.HTTPMethod, http.MethodPost) {
		return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: errorMethod, Message: "Método não permitido."}), nil
	}

	var (
		out usecase.TurnOutput
		err error
	)
	if isTurn {
		var body turnRequest
		if decErr := decodeBody(req.Body, &body); decErr != nil {
			log.Warn("handler: invalid turn body", "err", decErr)
			return invalidBody(corrID), nil
		}
		out, err = h.uc.SubmitTurn(ctx, usecase.TurnInput{SessionID: sessionID, Text: body.UserInput})
	} else {
		var body startRequest
		if decErr := decodeBody(req.Body, &body); decErr != nil {
			log.Warn("handler: invalid start body", "err", decErr)
			return invalidBody(corrID), nil
		}
		out, err = h.uc.StartSession(ctx, usecase.StartInput{PreviousSessionID: body.PreviousSessionID})
	}
	if err != nil {
		status, resp := mapError(err)
		if status >= http.StatusInternalServerError {
			log.Error("handler: request failed", "err", err)
		} else {
			log.Info("handler: request rejected", "err", err)
		}
		return jsonResponse(status, corrID, resp), nil
	}

	return jsonResponse(http.StatusOK, corrID, turnResponse{
		SessionID:   out.SessionID,
		BotResponse: out.Reply,
		ChatState:   string(out.State),
	}), nil
}

func route(req events.APIGatewayProxyRequest) (sessionID string, isTurn bool, ok bool) {
	segs := strings.Split(strings.Trim(req.Path, "/"), "/")
	n := len(segs)
	switch {
	case n >= 1 && segs[n-1] == "sessions":
		return "", false, true
	case n >= 3 && segs[n-1] == "turns" && segs[n-3] == "sessions":
		id := segs[n-2]
		if p := req.PathParameters["id"]; p != "" {
			id = p
		}
		return id, true, id != ""
	}
	return "", false, false
}

func decodeBody(body string, v any) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	return sonic.UnmarshalString(body, v)
}

func invalidBody(corrID string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, corrID, errorResponse{
		Error:   string(usecase.ErrorInvalidInput),
		Message: "Não consegui entender a requisição.",
	})
}

func mapError(err error) (int, errorResponse) {
	code := usecase.CodeOf(err)
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, errorResponse{Error: string(code), Message: invalidInputMessage(err)}
	case usecase.ErrorSessionNotFound:
		return http.StatusNotFound, errorResponse{Error: string(code), Message: "Sessão não encontrada. Por favor, inicie uma nova conversa."}
	default:
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: internalMessage}
	}
}

const internalMessage = "Desculpe, ocorreu um erro interno. Tente novamente em instantes."

func invalidInputMessage(err error) string {
	switch usecase.ReasonOf(err) {
	case usecase.ReasonEmptyInput:
		return "Por favor, diga algo."
	case usecase.ReasonMissingSessionID:
		return "Informe o identificador da sessão."
	}
	return "Sua mensagem não pôde ser processada. Por favor, envie uma mensagem mais curta."
}

func jsonResponse(status int, corrID string, body any) events.APIGatewayProxyResponse {
	raw, err := sonic.MarshalString(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = `{"error":"INTERNAL_ERROR","message":"` + internalMessage + `"}`
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: raw,
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return uuid.NewString()
}
