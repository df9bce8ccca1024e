package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/internal/logging"
	"github.com/tiercache/tiercache/internal/tracker"
)

// AppOptions controls the dependencies the object API is built on.
type AppOptions struct {
	Logger     *logrus.Logger
	Store      cache.Store
	Sweeper    *cache.Sweeper
	Tracker    *tracker.AccessTracker
	ListenPort int
}

const contextKeyRequestID = "_tiercache_request_id"

// NewApp 构建对象接口的 Fiber 应用：/v1/objects/* 承载 put/get/head/delete，
// /-/ 前缀是诊断路径。请求体按流式读取，避免大对象整体驻留内存。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Sweeper == nil {
		return nil, errors.New("sweeper is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:     true,
		StreamRequestBody: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/-/stats", statsHandler(opts))

	app.Put("/v1/objects/*", putObjectHandler(opts))
	// Head 必须先于 Get 注册：Get 会顺带注册同路径的 HEAD 路由，
	// 而存在性检查不允许刷新访问时间。
	app.Head("/v1/objects/*", headObjectHandler(opts))
	app.Get("/v1/objects/*", getObjectHandler(opts))
	app.Delete("/v1/objects/*", deleteObjectHandler(opts))

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，便于日志串联。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func putObjectHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("*")
		entry, err := opts.Store.Put(requestContext(c), key, requestBody(c))
		if err != nil {
			return renderStoreError(c, opts.Logger, "object_put", key, err)
		}

		opts.Logger.WithFields(logrus.Fields{
			"action":     "object_put",
			"key":        key,
			"size_bytes": entry.SizeBytes,
			"request_id": RequestID(c),
		}).Info("entry stored")

		return c.Status(fiber.StatusCreated).JSON(entry)
	}
}

func getObjectHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("*")
		result, err := opts.Store.Get(requestContext(c), key)
		if err != nil {
			return renderStoreError(c, opts.Logger, "object_get", key, err)
		}
		defer result.Reader.Close()

		fields := logging.ObjectFields("object_get", key, true)
		fields["request_id"] = RequestID(c)
		opts.Logger.WithFields(fields).Debug("cache hit")

		c.Response().Header.SetContentLength(int(result.Entry.SizeBytes))
		if _, err := io.Copy(c.Response().BodyWriter(), result.Reader); err != nil {
			// 流式响应已经开始，只能记录，无法再改写状态码。
			opts.Logger.WithFields(logrus.Fields{
				"action":     "object_get",
				"key":        key,
				"request_id": RequestID(c),
			}).Warnf("stream cached entry: %v", err)
		}
		return nil
	}
}

func headObjectHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if opts.Store.IsCached(c.Params("*")) == cache.Available {
			return c.SendStatus(fiber.StatusOK)
		}
		return c.SendStatus(fiber.StatusNotFound)
	}
}

func deleteObjectHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Params("*")
		if err := opts.Store.Invalidate(requestContext(c), key); err != nil {
			return renderStoreError(c, opts.Logger, "object_delete", key, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func statsHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"bytes_reclaimed": opts.Sweeper.TotalBytesReclaimed(),
			"tracked_keys":    opts.Tracker.Len(),
		})
	}
}

// renderStoreError 将 Store 错误翻译为统一的 JSON 错误响应。
func renderStoreError(c fiber.Ctx, logger *logrus.Logger, action, key string, err error) error {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.Is(err, cache.ErrOutOfBoundsKey), errors.Is(err, cache.ErrReservedKey):
		logger.WithFields(logrus.Fields{
			"action":     action,
			"key":        key,
			"request_id": RequestID(c),
		}).Warn(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_key"})
	default:
		logger.WithFields(logrus.Fields{
			"action":     action,
			"key":        key,
			"request_id": RequestID(c),
		}).Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_io"})
	}
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func requestBody(c fiber.Ctx) io.Reader {
	if stream := c.Request().BodyStream(); stream != nil {
		return stream
	}
	return bytesReader(c.Body())
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}
