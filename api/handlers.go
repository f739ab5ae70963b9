package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
	"github.com/CristiGvl/picoGPUMon/internal/platform"
)

// GPU list endpoint, served from the latest poll
func (s *Server) getGPUs(c *fiber.Ctx) error {
	return c.JSON(s.poller.Latest())
}

// Primary GPU endpoint
func (s *Server) getPrimaryGPU(c *fiber.Ctx) error {
	snap := s.poller.Latest()
	if snap.Primary == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no primary gpu",
			"state": snap.SlotState,
		})
	}
	return c.JSON(snap.Primary)
}

// Per-device stats endpoint
func (s *Server) getGPUStats(c *fiber.Ctx) error {
	id := c.Params("id")
	reading, ok := s.poller.Latest().Find(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown gpu: " + id})
	}
	return c.JSON(reading)
}

// Extended stats endpoint, read live from the backend
func (s *Server) getGPUExtended(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := c.Params("id")
	dev, ok := s.findDevice(ctx, id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown gpu: " + id})
	}

	ok, ext := s.service.ReadExtendedFor(dev)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "extended stats unavailable for " + id})
	}

	return c.JSON(fiber.Map{
		"device":   dev,
		"backend":  s.service.BackendFor(dev),
		"extended": ext,
	})
}

// Rescan endpoint, re-enumerates devices and polls immediately
func (s *Server) rescanGPUs(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return c.JSON(s.poller.Rescan(ctx))
}

// Health check endpoint
func (s *Server) healthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap := s.poller.Latest()

	backends := make([]string, 0, len(s.service.Backends()))
	for _, b := range s.service.Backends() {
		backends = append(backends, b.Name())
	}

	resp := fiber.Map{
		"status":        "ok",
		"platform":      platform.GetOS(),
		"timestamp":     time.Now().Unix(),
		"version":       s.version,
		"instance_id":   s.instanceID,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"devices":       len(snap.Devices),
		"primary_state": snap.SlotState,
		"backends":      backends,
	}
	if !snap.Taken.IsZero() {
		resp["last_poll"] = snap.Taken.Unix()
	}
	if s.nvml != nil {
		resp["nvml"] = s.nvml.Info()
	}
	if host, err := platform.GetHostInfo(ctx); err == nil {
		resp["host"] = host
	}

	return c.JSON(resp)
}

func (s *Server) findDevice(ctx context.Context, id string) (gpu.Device, bool) {
	for _, dev := range s.service.Devices(ctx) {
		if dev.ID() == id {
			return dev, true
		}
	}
	return gpu.Device{}, false
}
