package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/wpanctl/internal/auth"
	"github.com/danmuck/wpanctl/internal/ncp"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	version = "0.1.0"
	// actionTimeout bounds how long a request waits for its callback.
	actionTimeout = 2 * time.Minute
)

var ErrUnknownAction = errors.New("daemon: unknown action")

func (s *Service) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.logger))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET", "PUT", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	return r
}

func (s *Service) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.Name,
			"version": version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ready", func(c *gin.Context) {
		snap, err := s.ctl.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
			return
		}
		state, _ := ncp.ParseNCPState(snap.State)
		ready := !snap.Initializing && !state.Initializing() && !state.Detached()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"state":   snap.State,
			"service": s.cfg.Name,
			"version": version,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		snap, err := s.ctl.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	r.GET("/properties", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"properties": schema.Keys()})
	})

	r.GET("/properties/:key", func(c *gin.Context) {
		key := c.Param("key")
		status, value := s.await(c, func(cb ncp.Callback) { s.ctl.PropertyGet(key, cb) })
		respond(c, status, gin.H{"key": key, "value": value})
	})

	control := r.Group("/")
	if token := strings.TrimSpace(s.cfg.APIToken); token != "" {
		control.Use(auth.Middleware(auth.StaticToken{Token: token}))
	}

	control.PUT("/properties/:key", func(c *gin.Context) {
		key := c.Param("key")
		var body struct {
			Value json.RawMessage `json:"value"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || len(body.Value) == 0 {
			respond(c, protocol.StatusInvalidArgument, gin.H{"key": key})
			return
		}
		v, err := propertyValue(key, body.Value)
		if err != nil {
			respond(c, protocol.StatusInvalidArgument, gin.H{"key": key, "detail": err.Error()})
			return
		}
		status, _ := s.await(c, func(cb ncp.Callback) { s.ctl.PropertySet(key, v, cb) })
		respond(c, status, gin.H{"key": key})
	})

	control.POST("/actions/:action", func(c *gin.Context) {
		s.runAction(c, c.Param("action"))
	})
}

func (s *Service) runAction(c *gin.Context, action string) {
	switch action {
	case "join", "form":
		var req networkRequest
		if !bindOptional(c, &req) {
			return
		}
		opts, err := req.options()
		if err != nil {
			respond(c, protocol.StatusInvalidArgument, gin.H{"action": action, "detail": err.Error()})
			return
		}
		op := s.ctl.Join
		if action == "form" {
			op = s.ctl.Form
		}
		status, _ := s.await(c, func(cb ncp.Callback) { op(opts, cb) })
		respond(c, status, gin.H{"action": action})

	case "leave", "attach", "reset", "refresh", "data-poll", "upgrade-firmware":
		ops := map[string]func(ncp.Callback){
			"leave":            s.ctl.Leave,
			"attach":           s.ctl.Attach,
			"reset":            s.ctl.Reset,
			"refresh":          s.ctl.RefreshState,
			"data-poll":        s.ctl.DataPoll,
			"upgrade-firmware": s.ctl.UpgradeFirmware,
		}
		status, _ := s.await(c, ops[action])
		respond(c, status, gin.H{"action": action})

	case "permit-join":
		var req struct {
			Seconds int    `json:"seconds"`
			Port    uint16 `json:"port"`
		}
		if !bindOptional(c, &req) {
			return
		}
		status, _ := s.await(c, func(cb ncp.Callback) { s.ctl.PermitJoin(req.Seconds, req.Port, cb) })
		respond(c, status, gin.H{"action": action})

	case "netscan":
		var req scanRequest
		if !bindOptional(c, &req) {
			return
		}
		status, _ := s.await(c, func(cb ncp.Callback) { s.ctl.NetScanStart(req.options(), cb) })
		var beacons []protocol.Value
		if status.Ok() {
			_ = s.loop.Call(c.Request.Context(), func() {
				for _, b := range s.inst.Beacons() {
					beacons = append(beacons, b.ValueMap())
				}
			})
		}
		respond(c, status, gin.H{"action": action, "beacons": beacons})

	case "energyscan":
		var req scanRequest
		if !bindOptional(c, &req) {
			return
		}
		if err := s.loop.Post(func() { s.energy = s.energy[:0] }); err != nil {
			respond(c, protocol.StatusCanceled, gin.H{"action": action})
			return
		}
		status, _ := s.await(c, func(cb ncp.Callback) { s.ctl.EnergyScanStart(req.options(), cb) })
		var results []protocol.Value
		if status.Ok() {
			_ = s.loop.Call(c.Request.Context(), func() {
				for _, r := range s.energy {
					results = append(results, r.ValueMap())
				}
			})
		}
		respond(c, status, gin.H{"action": action, "results": results})

	default:
		c.JSON(http.StatusNotFound, gin.H{"error": ErrUnknownAction.Error(), "action": action})
	}
}

// await starts op and blocks until its callback fires or the request ends.
func (s *Service) await(c *gin.Context, op func(cb ncp.Callback)) (protocol.Status, protocol.Value) {
	type outcome struct {
		status protocol.Status
		value  protocol.Value
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), actionTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	op(func(status protocol.Status, value protocol.Value) {
		select {
		case done <- outcome{status, value}:
		default:
		}
	})
	select {
	case o := <-done:
		return o.status, o.value
	case <-ctx.Done():
		return protocol.StatusTimeout, protocol.Value{}
	}
}

func respond(c *gin.Context, status protocol.Status, body gin.H) {
	body["status"] = status.String()
	if !status.Ok() {
		body["error"] = status.Error()
	}
	c.JSON(httpStatus(status), body)
}

func httpStatus(status protocol.Status) int {
	switch status {
	case protocol.StatusOk:
		return http.StatusOK
	case protocol.StatusInProgress:
		return http.StatusAccepted
	case protocol.StatusInvalidArgument, protocol.StatusInvalidType, protocol.StatusInvalidRange,
		protocol.StatusNCPInvalidArgument, protocol.StatusNCPInvalidRange, protocol.StatusMissingXPANID:
		return http.StatusBadRequest
	case protocol.StatusPropertyNotFound, protocol.StatusPropertyEmpty, protocol.StatusInterfaceNotFound:
		return http.StatusNotFound
	case protocol.StatusInvalidWhenDisabled, protocol.StatusInvalidForCurrentState,
		protocol.StatusAlready, protocol.StatusBusy:
		return http.StatusConflict
	case protocol.StatusFeatureNotSupported, protocol.StatusFeatureNotImplemented:
		return http.StatusNotImplemented
	case protocol.StatusTimeout:
		return http.StatusGatewayTimeout
	case protocol.StatusCanceled, protocol.StatusTryAgainLater:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// bindOptional decodes a JSON body when one was sent. It writes the error
// response itself and reports false on malformed input.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respond(c, protocol.StatusInvalidArgument, gin.H{"detail": err.Error()})
		return false
	}
	return true
}

// propertyValue converts a JSON value into the kind key expects. Keys
// outside the schema take the raw text.
func propertyValue(key string, raw json.RawMessage) (protocol.Value, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = strings.TrimSpace(string(raw))
	}
	e, ok := schema.Lookup(key)
	if !ok {
		return protocol.String(text), nil
	}
	return protocol.ParseText(e.Type.Kind(), text)
}

type networkRequest struct {
	Name            string  `json:"name"`
	NodeType        string  `json:"node_type"`
	Channel         uint8   `json:"channel"`
	ChannelMask     uint32  `json:"channel_mask"`
	PANID           *uint16 `json:"panid"`
	XPANID          string  `json:"xpanid"`
	Key             string  `json:"key"`
	KeyIndex        *uint32 `json:"key_index"`
	MeshLocalPrefix string  `json:"mesh_local_prefix"`
}

func (r networkRequest) options() (ncp.NetworkOptions, error) {
	opts := ncp.NetworkOptions{
		Name:        r.Name,
		NodeType:    ncp.ParseNodeType(r.NodeType),
		Channel:     r.Channel,
		ChannelMask: r.ChannelMask,
		PANID:       r.PANID,
		KeyIndex:    r.KeyIndex,
	}
	var err error
	if r.XPANID != "" {
		if opts.XPANID, err = protocol.String(r.XPANID).AsData(); err != nil {
			return opts, err
		}
	}
	if r.Key != "" {
		if opts.Key, err = protocol.String(r.Key).AsData(); err != nil {
			return opts, err
		}
	}
	if r.MeshLocalPrefix != "" {
		if opts.MeshLocalPrefix, err = schema.ParseAddr(r.MeshLocalPrefix); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

type scanRequest struct {
	ChannelMask uint32 `json:"channel_mask"`
	PeriodMS    uint16 `json:"period_ms"`
}

func (r scanRequest) options() ncp.ScanOptions {
	return ncp.ScanOptions{ChannelMask: r.ChannelMask, Period: r.PeriodMS}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
