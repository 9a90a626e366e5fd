package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values  map[string]string
	getErr  error
	gotName string
	gotDec  bool
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.gotName = *in.Name
	f.gotDec = in.WithDecryption != nil && *in.WithDecryption
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v, Type: types.ParameterTypeSecureString}}, nil
}

func newClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(api, "/sales-agent/")
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "/p")
	require.ErrorContains(t, err, "must not be nil")

	_, err = New(&fakeAPI{}, "  ")
	require.ErrorContains(t, err, "prefix")
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/x": "v"}}
	v, err := newClient(t, api).GetParameter(context.Background(), " /x ")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.True(t, api.gotDec)
}

func TestGetParameter_MissingValue(t *testing.T) {
	_, err := newClient(t, &fakeAPI{}).GetParameter(context.Background(), "/x")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameter_EmptyName(t *testing.T) {
	_, err := newClient(t, &fakeAPI{}).GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestToken_HappyPath(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/sales-agent/gemini-token": `{"token":"g-123"}`}}
	tok, err := newClient(t, api).Token(context.Background(), GeminiTokenName)
	require.NoError(t, err)
	require.Equal(t, "g-123", tok)
	require.Equal(t, "/sales-agent/gemini-token", api.gotName)
}

func TestToken_NotJSON(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/sales-agent/openrouter-token": "plain"}}
	_, err := newClient(t, api).Token(context.Background(), OpenRouterTokenName)
	require.ErrorContains(t, err, "unmarshal token")
}

func TestToken_Empty(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/sales-agent/openrouter-token": `{"token":""}`}}
	_, err := newClient(t, api).Token(context.Background(), OpenRouterTokenName)
	require.ErrorContains(t, err, "is empty")
}

func TestToken_APIError(t *testing.T) {
	_, err := newClient(t, &fakeAPI{getErr: errors.New("boom")}).Token(context.Background(), GeminiTokenName)
	require.ErrorContains(t, err, "boom")
}
