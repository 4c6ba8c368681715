package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the job API and the archive download directory
func RegisterRoutes(app fiber.Router, jobs *JobHandler, downloadDir string, health fiber.Handler) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})
	if health != nil {
		app.Get("/health", health)
	}

	app.Post("/clip-jobs", jobs.SubmitClip)
	app.Post("/playlist-jobs", jobs.SubmitPlaylist)
	app.Get("/jobs/:jobId/status", jobs.Status)

	app.Static("/downloads", downloadDir, fiber.Static{
		Browse:   false,
		Download: true,
	})
}
