package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

type fakeSkill struct {
	desc   *skill.Descriptor
	out    any
	err    error
	frames []*imaging.Frame
	closed bool
}

func (f *fakeSkill) Descriptor() *skill.Descriptor  { return f.desc }
func (f *fakeSkill) Device() device.ExecutionDevice { return device.CPU() }

func (f *fakeSkill) EvaluateImage(_ context.Context, frame *imaging.Frame) (any, error) {
	f.frames = append(f.frames, frame)
	return f.out, f.err
}

func (f *fakeSkill) Close() error {
	f.closed = true
	return nil
}

type fixture struct {
	srv   *Server
	fakes map[skill.Kind]*fakeSkill
	loads map[skill.Kind]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	descs, err := skills.Descriptors(nil)
	require.NoError(t, err)

	fx := &fixture{
		fakes: map[skill.Kind]*fakeSkill{
			skill.FaceSentiment: {out: skills.FaceSentimentResult{Faces: []skills.Face{{
				Rect: []float32{0.1, 0.2, 0.3, 0.4}, Sentiment: "happiness", Score: 0.9,
			}}}},
			skill.ImageRectifier: {out: imaging.NewFrame(3, 2, imaging.BGRA8)},
			skill.SkeletalDetector: {err: errors.Join(errors.New("decode"), skill.ErrFeatureShape)},
		},
		loads: make(map[skill.Kind]int),
	}
	fx.srv, err = New(Options{
		Devices:     []device.ExecutionDevice{device.CPU(), device.GPU("test adapter", device.Level12_1)},
		Descriptors: descs,
		Load: func(kind skill.Kind) (skills.ImageSkill, error) {
			fx.loads[kind]++
			if f, ok := fx.fakes[kind]; ok {
				return f, nil
			}
			return nil, skills.ErrNotInstalled
		},
	})
	require.NoError(t, err)
	return fx
}

func (fx *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func pngBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "frame.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func encodedPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 3))))
	return buf.Bytes()
}

func evaluateRequest(t *testing.T, kind string) *http.Request {
	t.Helper()
	body, ct := pngBody(t, "image", encodedPNG(t))
	req := httptest.NewRequest(http.MethodPost, "/v1/skills/"+kind+"/evaluate", body)
	req.Header.Set("Content-Type", ct)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestNewRequiresLoader(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealthAndListings(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = fx.do(httptest.NewRequest(http.MethodGet, "/v1/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var devices []DeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "cpu", devices[0].Kind)
	assert.Empty(t, devices[0].FeatureLevel)
	assert.Equal(t, "12_1", devices[1].FeatureLevel)

	rec = fx.do(httptest.NewRequest(http.MethodGet, "/v1/skills", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var descs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &descs))
	require.Len(t, descs, len(skill.Kinds()))
	assert.Equal(t, "facesentiment", descs[0]["kind"])
}

func TestEvaluateJSON(t *testing.T) {
	fx := newFixture(t)

	for range 2 {
		rec := fx.do(evaluateRequest(t, "facesentiment"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res skills.FaceSentimentResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.Len(t, res.Faces, 1)
		assert.Equal(t, "happiness", res.Faces[0].Sentiment)
	}

	assert.Equal(t, 1, fx.loads[skill.FaceSentiment], "skill is loaded once")
	frames := fx.fakes[skill.FaceSentiment].frames
	require.Len(t, frames, 2)
	assert.Equal(t, 4, frames[0].Width)
	assert.Equal(t, 3, frames[0].Height)
}

func TestEvaluateImageResult(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(evaluateRequest(t, "rectifier"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}

func TestEvaluateErrors(t *testing.T) {
	fx := newFixture(t)

	badImage, badCT := pngBody(t, "image", []byte("not an image"))
	badReq := httptest.NewRequest(http.MethodPost, "/v1/skills/facesentiment/evaluate", badImage)
	badReq.Header.Set("Content-Type", badCT)

	wrongField, wrongCT := pngBody(t, "photo", encodedPNG(t))
	wrongReq := httptest.NewRequest(http.MethodPost, "/v1/skills/facesentiment/evaluate", wrongField)
	wrongReq.Header.Set("Content-Type", wrongCT)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"unknown kind", evaluateRequest(t, "nope"), http.StatusNotFound, "unknown_skill"},
		{"tracker", evaluateRequest(t, "objecttracker"), http.StatusBadRequest, "unsupported_skill"},
		{"not installed", evaluateRequest(t, "objectdetector"), http.StatusNotFound, "skill_not_installed"},
		{"bad image", badReq, http.StatusBadRequest, "invalid_image"},
		{"missing field", wrongReq, http.StatusBadRequest, "missing_image"},
		{"evaluation error", evaluateRequest(t, "skeletal"), http.StatusBadRequest, "invalid_argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
	assert.Equal(t, 2, fx.loads[skill.ObjectDetector]+fx.loads[skill.SkeletalDetector])
}

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{skill.ErrInvalidFrame, http.StatusBadRequest},
		{skill.ErrMissingFeature, http.StatusBadRequest},
		{skill.ErrUnsupportedDevice, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, httpError(tt.err).Code, tt.err.Error())
	}
}

func TestCloseReleasesLoadedSkills(t *testing.T) {
	fx := newFixture(t)
	require.Equal(t, http.StatusOK, fx.do(evaluateRequest(t, "facesentiment")).Code)

	require.NoError(t, fx.srv.Close())
	assert.True(t, fx.fakes[skill.FaceSentiment].closed)
	assert.False(t, fx.fakes[skill.ImageRectifier].closed)
}

func TestStartStopsOnCancel(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.srv.Start(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
