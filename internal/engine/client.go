package engine

import (
	"context"
	"fmt"

	stderrors "github.com/shirotsuki/phrase-renderer/internal/errors"
	"github.com/shirotsuki/phrase-renderer/internal/httpclient"
)

// Client is the four-operation synthesis engine API the pipeline depends
// on (spec.md §6). Every call may fail; the DAG runner catches failures and
// reports them as a Failed task result rather than stopping the run.
type Client interface {
	FetchFrameAudioQuery(ctx context.Context, engineID string, styleID int, frameRate float64, notes []NoteForEngine) (Query, error)
	FetchSingFrameF0(ctx context.Context, engineID string, styleID int, notes []NoteForEngine, query Query) ([]float64, error)
	FetchSingFrameVolume(ctx context.Context, engineID string, styleID int, notes []NoteForEngine, query Query) ([]float64, error)
	FrameSynthesis(ctx context.Context, engineID string, styleID int, query Query) (VoiceBlob, error)
}

// HTTPClient implements Client against a remote engine's HTTP API, the way
// a host application wires the pipeline to a real voice synthesis backend.
// All four calls wrap internal/httpclient.Client's PostJSON helper.
type HTTPClient struct {
	http    *httpclient.Client
	baseURL string
}

// NewHTTPClient builds an HTTPClient rooted at baseURL, using http for
// transport (construct one with httpclient.New(nil) for production
// defaults, or a tuned httpclient.Config for engines under heavier load).
func NewHTTPClient(http *httpclient.Client, baseURL string) *HTTPClient {
	return &HTTPClient{http: http, baseURL: baseURL}
}

type audioQueryRequest struct {
	EngineID  string          `json:"engineId"`
	StyleID   int             `json:"styleId"`
	FrameRate float64         `json:"frameRate"`
	Notes     []NoteForEngine `json:"notes"`
}

func (c *HTTPClient) FetchFrameAudioQuery(ctx context.Context, engineID string, styleID int, frameRate float64, notes []NoteForEngine) (Query, error) {
	var out Query
	err := c.http.PostJSON(ctx, c.baseURL+"/audio_query", audioQueryRequest{
		EngineID:  engineID,
		StyleID:   styleID,
		FrameRate: frameRate,
		Notes:     notes,
	}, &out)
	if err != nil {
		return Query{}, engineError("fetchFrameAudioQuery", err)
	}
	return out, nil
}

type singFrameRequest struct {
	EngineID string          `json:"engineId"`
	StyleID  int             `json:"styleId"`
	Notes    []NoteForEngine `json:"notes"`
	Query    Query           `json:"query"`
}

type f0Response struct {
	F0 []float64 `json:"f0"`
}

func (c *HTTPClient) FetchSingFrameF0(ctx context.Context, engineID string, styleID int, notes []NoteForEngine, query Query) ([]float64, error) {
	var out f0Response
	err := c.http.PostJSON(ctx, c.baseURL+"/sing_frame_f0", singFrameRequest{
		EngineID: engineID,
		StyleID:  styleID,
		Notes:    notes,
		Query:    query,
	}, &out)
	if err != nil {
		return nil, engineError("fetchSingFrameF0", err)
	}
	return out.F0, nil
}

type volumeResponse struct {
	Volume []float64 `json:"volume"`
}

func (c *HTTPClient) FetchSingFrameVolume(ctx context.Context, engineID string, styleID int, notes []NoteForEngine, query Query) ([]float64, error) {
	var out volumeResponse
	err := c.http.PostJSON(ctx, c.baseURL+"/sing_frame_volume", singFrameRequest{
		EngineID: engineID,
		StyleID:  styleID,
		Notes:    notes,
		Query:    query,
	}, &out)
	if err != nil {
		return nil, engineError("fetchSingFrameVolume", err)
	}
	return out.Volume, nil
}

type synthesisRequest struct {
	EngineID string `json:"engineId"`
	StyleID  int    `json:"styleId"`
	Query    Query  `json:"query"`
}

type synthesisResponse struct {
	Audio []byte `json:"audio"`
}

func (c *HTTPClient) FrameSynthesis(ctx context.Context, engineID string, styleID int, query Query) (VoiceBlob, error) {
	var out synthesisResponse
	err := c.http.PostJSON(ctx, c.baseURL+"/frame_synthesis", synthesisRequest{
		EngineID: engineID,
		StyleID:  styleID,
		Query:    query,
	}, &out)
	if err != nil {
		return nil, engineError("frameSynthesis", err)
	}
	return VoiceBlob(out.Audio), nil
}

func engineError(op string, cause error) error {
	return stderrors.New(fmt.Errorf("%s: %w", op, cause)).
		Component("engine").
		Category(stderrors.CategoryEngine).
		Context("operation", op).
		Build()
}
