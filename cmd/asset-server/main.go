package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"traitforge/pkg/logging"
)

// asset-server stands in for the trait asset host during development:
// GET /traits/{traitId}.png serves files from -dir.
func main() {
	addr := flag.String("addr", ":9000", "listen address")
	dir := flag.String("dir", "data/traits", "directory holding {traitId}.png files")
	seed := flag.Int("seed", 0, "write this many demo trait layers into -dir before serving")
	size := flag.Int("size", 1200, "edge length of generated demo layers")
	flag.Parse()

	logger := logging.MustNew("info", true)
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		logger.Fatal("create asset dir", zap.Error(err))
	}
	if *seed > 0 {
		if err := writeDemoLayers(*dir, *seed, *size); err != nil {
			logger.Fatal("seed demo layers", zap.Error(err))
		}
		logger.Info("seeded demo layers", zap.Int("count", *seed), zap.String("dir", *dir))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Static("/traits", *dir)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "dir": *dir})
	})

	logger.Info("asset-server listening", zap.String("addr", *addr), zap.String("dir", *dir))
	if err := router.Run(*addr); err != nil {
		logger.Fatal("asset-server stopped", zap.Error(err))
	}
}

// writeDemoLayers draws layer i as a horizontal band so stacked layers
// stay distinguishable.
func writeDemoLayers(dir string, n, size int) error {
	palette := []color.NRGBA{
		{R: 230, G: 57, B: 70, A: 255},
		{R: 69, G: 123, B: 157, A: 255},
		{R: 42, G: 157, B: 143, A: 255},
		{R: 233, G: 196, B: 106, A: 255},
		{R: 29, G: 53, B: 87, A: 200},
	}
	band := size / n
	if band == 0 {
		band = 1
	}

	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		rect := image.Rect(0, i*band, size, min(size, (i+2)*band))
		draw.Draw(img, rect, &image.Uniform{C: palette[i%len(palette)]}, image.Point{}, draw.Src)

		path := filepath.Join(dir, fmt.Sprintf("%d.png", i+1))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
