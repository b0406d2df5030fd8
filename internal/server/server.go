// Package server exposes the vision skills over HTTP.
package server

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

const shutdownTimeout = 10 * time.Second

// LoadFunc builds the skill of a kind. It is called at most once per kind
// that loads successfully.
type LoadFunc func(kind skill.Kind) (skills.ImageSkill, error)

// Options configures a Server.
type Options struct {
	Devices     []device.ExecutionDevice
	Descriptors []*skill.Descriptor
	Load        LoadFunc
}

// Server is the HTTP API. Skills are loaded on first use and kept until
// Close; each skill evaluates one request at a time.
type Server struct {
	echo *echo.Echo
	opts Options

	mu     sync.Mutex
	loaded map[skill.Kind]skills.ImageSkill
}

// New returns a server with every route registered.
func New(opts Options) (*Server, error) {
	if opts.Load == nil {
		return nil, errors.New("server needs a skill loader")
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, opts: opts, loaded: make(map[skill.Kind]skills.ImageSkill)}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)
	v1 := s.echo.Group("/v1")
	v1.GET("/devices", s.listDevices)
	v1.GET("/skills", s.listSkills)
	v1.POST("/skills/:kind/evaluate", s.evaluate)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.G(c.Request().Context()).WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Debug("request")
			return nil
		},
	})
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Wrap(s.echo.Shutdown(shutdownCtx), "shutdown http server")
}

// Close releases every loaded skill.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *multierror.Error
	for kind, sk := range s.loaded {
		if err := sk.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close %s", kind))
		}
		delete(s.loaded, kind)
	}
	return result.ErrorOrNil()
}

func (s *Server) skill(kind skill.Kind) (skills.ImageSkill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sk, ok := s.loaded[kind]; ok {
		return sk, nil
	}
	sk, err := s.opts.Load(kind)
	if err != nil {
		return nil, err
	}
	s.loaded[kind] = sk
	return sk, nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// DeviceResponse is one entry of GET /v1/devices.
type DeviceResponse struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	FeatureLevel string `json:"feature_level,omitempty"`
}

func (s *Server) listDevices(c echo.Context) error {
	out := make([]DeviceResponse, 0, len(s.opts.Devices))
	for _, d := range s.opts.Devices {
		r := DeviceResponse{Kind: d.Kind.String(), Name: d.Name, Description: d.Description}
		if d.Kind == device.KindGPU {
			r.FeatureLevel = d.FeatureLevel.String()
		}
		out = append(out, r)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listSkills(c echo.Context) error {
	return c.JSON(http.StatusOK, s.opts.Descriptors)
}

func (s *Server) evaluate(c echo.Context) error {
	kind, err := skill.ParseKind(c.Param("kind"))
	if err != nil {
		return notFound("unknown_skill", err.Error())
	}
	if kind == skill.ObjectTracker {
		return badRequest("unsupported_skill", "object tracking needs seeded targets and a frame stream")
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest("missing_image", `multipart field "image" is required`)
	}
	file, err := fh.Open()
	if err != nil {
		return badRequest("missing_image", err.Error())
	}
	defer file.Close()
	frame, err := imaging.Decode(file)
	if err != nil {
		return badRequest("invalid_image", err.Error())
	}

	ctx := c.Request().Context()
	sk, err := s.skill(kind)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("skill", kind.String()).Warn("skill load failed")
		return httpError(err)
	}
	out, err := sk.EvaluateImage(ctx, frame)
	if err != nil {
		return httpError(errors.Wrapf(err, "evaluate %s", kind))
	}

	if img, ok := out.(*imaging.Frame); ok {
		return writePNG(c, img)
	}
	return c.JSON(http.StatusOK, out)
}

func writePNG(c echo.Context, f *imaging.Frame) error {
	img, err := f.ToImage()
	if err != nil {
		return httpError(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return httpError(errors.Wrap(err, "encode png"))
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}
