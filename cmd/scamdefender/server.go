package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/config"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/features"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/ml"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/scan"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/store"
)

// httpError maps domain errors onto HTTP status codes.
func httpError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ml.ErrInvalidInput), errors.Is(err, scan.ErrInvalidReport):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ml.ErrArtifactUnavailable):
		return c.Status(503).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Printf("[HTTP] internal error: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}
}

// readUpload pulls the multipart "file" part into memory.
func readUpload(c fiber.Ctx) ([]byte, string, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func queryInt(c fiber.Ctx, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func runHTTPServer(cfg *config.Config) {
	engine := NewEngine(context.Background(), cfg)
	defer engine.Close()

	app := fiber.New(fiber.Config{
		AppName: "Scam Defender",
	})

	// Health check
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	// ========================================================================
	// Scan endpoints
	// ========================================================================

	app.Post("/scan/email", func(c fiber.Ctx) error {
		var req struct {
			Subject string `json:"subject"`
			Message string `json:"message"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		record, err := engine.orchestrator.ScanEmail(c.Context(), req.Subject, req.Message)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(record)
	})

	app.Post("/scan/message", func(c fiber.Ctx) error {
		var req struct {
			MessageText string `json:"message_text"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		record, err := engine.orchestrator.ScanMessage(c.Context(), req.MessageText)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(record)
	})

	app.Post("/scan/url", func(c fiber.Ctx) error {
		var req struct {
			URL string `json:"url"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		record, err := engine.orchestrator.ScanURL(c.Context(), req.URL)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(record)
	})

	app.Post("/scan/file", func(c fiber.Ctx) error {
		data, filename, err := readUpload(c)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "file field is required"})
		}
		record, err := engine.orchestrator.ScanFile(c.Context(), data, filename)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(record)
	})

	app.Post("/scan/fraud", func(c fiber.Ctx) error {
		var tx features.Transaction
		if err := c.Bind().Body(&tx); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		record, err := engine.orchestrator.ScanFraud(c.Context(), tx)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(record)
	})

	// ========================================================================
	// Sandbox endpoints
	// ========================================================================

	app.Post("/sandbox/email", func(c fiber.Ctx) error {
		var req struct {
			Content string            `json:"content"`
			Headers map[string]string `json:"headers"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Content == "" {
			return c.Status(400).JSON(fiber.Map{"error": "content field is required"})
		}
		report, err := engine.sandbox.AnalyzeEmail(c.Context(), req.Content, req.Headers)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(report)
	})

	app.Post("/sandbox/file", func(c fiber.Ctx) error {
		data, filename, err := readUpload(c)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "file field is required"})
		}
		report, err := engine.sandbox.AnalyzeFile(c.Context(), data, filename)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(report)
	})

	// ========================================================================
	// Alerts & live stream
	// ========================================================================

	app.Get("/alerts", func(c fiber.Ctx) error {
		alerts, err := engine.orchestrator.Alerts(c.Context())
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{"alerts": alerts})
	})

	app.Patch("/alerts/:id/ack", func(c fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid alert id"})
		}
		if err := engine.orchestrator.AcknowledgeAlert(c.Context(), id); err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{"acknowledged": true})
	})

	app.Get("/stream/alerts", func(c fiber.Ctx) error {
		since, _ := strconv.ParseInt(c.Query("since"), 10, 64)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")

		return c.SendStreamWriter(func(w *bufio.Writer) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			for event := range engine.streamer.Subscribe(ctx, since) {
				var frame string
				if event.Type == "alert" {
					payload, err := json.Marshal(event.Alert)
					if err != nil {
						continue
					}
					frame = "event: alert\ndata: " + string(payload) + "\n\n"
				} else {
					frame = "event: ping\ndata: {}\n\n"
				}
				if _, err := w.WriteString(frame); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
	})

	// ========================================================================
	// Models, dashboard & community reports
	// ========================================================================

	app.Get("/models/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"models": engine.orchestrator.ModelStatus()})
	})

	app.Get("/dashboard/summary", func(c fiber.Ctx) error {
		summary, err := engine.orchestrator.Summary(c.Context())
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(summary)
	})

	app.Get("/dashboard/history", func(c fiber.Ctx) error {
		limit := queryInt(c, "limit", 50)
		records, err := engine.orchestrator.History(c.Context(), limit)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{"history": records})
	})

	app.Post("/report-threat", func(c fiber.Ctx) error {
		var input scan.ReportInput
		if err := c.Bind().Body(&input); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		outcome, err := engine.reports.Submit(c.Context(), input)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{
			"success": true,
			"report":  outcome.Report,
			"deduped": outcome.Deduped,
		})
	})

	app.Get("/community/threats", func(c fiber.Ctx) error {
		status := c.Query("status")
		limit := queryInt(c, "limit", 50)
		threats, stats, err := engine.reports.Community(c.Context(), status, limit)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{"threats": threats, "stats": stats})
	})

	app.Get("/admin/review-reports", func(c fiber.Ctx) error {
		queue, err := engine.reports.ReviewQueue(c.Context())
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{"reports": queue})
	})

	app.Post("/admin/review-report/:id", func(c fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid report id"})
		}
		var req struct {
			Action   string `json:"action"`
			Reviewer string `json:"reviewer"`
			Notes    string `json:"notes"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		report, err := engine.reports.Review(c.Context(), id, req.Action, req.Reviewer, req.Notes)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "report": report})
	})

	log.Printf("Scam Defender v%s listening on :%s", Version, cfg.ListenPort)
	log.Printf("Endpoints:")
	log.Printf("  POST /scan/{email,message,url,file,fraud}  - Threat classification")
	log.Printf("  POST /sandbox/{email,file}                 - Multi-stage sandbox analysis")
	log.Printf("  GET  /alerts, /stream/alerts               - Threat alerts and SSE feed")
	log.Printf("  GET  /dashboard/{summary,history}          - Scan history aggregates")
	log.Printf("  POST /report-threat                        - Community threat reports")

	if err := app.Listen(":" + cfg.ListenPort); err != nil {
		log.Fatal(err)
	}
}
