package handlers

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"stockpos/internal/logger"
)

const (
	maxImageSize   = 5 << 20
	thumbnailSize  = 300
	productsSubdir = "products"

	defaultBarcodeWidth  = 300
	defaultBarcodeHeight = 100
	maxBarcodeWidth      = 1200
	maxBarcodeHeight     = 600
)

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// renderBarcode encodes content as Code128 and scales it. Widths below the
// symbol's module count are raised to it.
func renderBarcode(content string, width, height int) (image.Image, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("nothing to encode")
	}

	code, err := code128.Encode(content)
	if err != nil {
		return nil, err
	}

	if modules := code.Bounds().Dx(); width < modules {
		width = modules
	}
	if width > maxBarcodeWidth {
		width = maxBarcodeWidth
	}
	if height < 1 {
		height = defaultBarcodeHeight
	}
	if height > maxBarcodeHeight {
		height = maxBarcodeHeight
	}

	return barcode.Scale(code, width, height)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func ProductBarcode(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id/barcode"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}
		width, err := queryInt(c, "width", defaultBarcodeWidth)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		height, err := queryInt(c, "height", defaultBarcodeHeight)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := findProduct(ctx, db, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		content := product.Barcode
		if content == "" {
			content = product.SKU
		}

		img, err := renderBarcode(content, width, height)
		if err != nil {
			respondWithError(c, http.StatusUnprocessableEntity, route, "cannot encode barcode: "+err.Error())
			return
		}

		c.Header("Content-Type", "image/png")
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.png"`, product.SKU))
		c.Status(http.StatusOK)
		if err := png.Encode(c.Writer, img); err != nil {
			logger.Named("products").Warn("barcode write failed", zap.Error(err))
		}
	}
}

type savedImage struct {
	ImagePath     string
	ThumbnailPath string
}

// saveImage decodes the upload, stores it under uploadDir/products with a
// fresh name and writes a JPEG thumbnail next to it.
func saveImage(file *multipart.FileHeader, uploadDir string) (savedImage, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if extension == "" {
		return savedImage{}, fmt.Errorf("image file extension is required")
	}
	if _, ok := allowedImageExtensions[extension]; !ok {
		return savedImage{}, fmt.Errorf("unsupported image type: %s", extension)
	}
	if file.Size > maxImageSize {
		return savedImage{}, fmt.Errorf("image file too large (max 5MB)")
	}

	in, err := file.Open()
	if err != nil {
		return savedImage{}, err
	}
	defer in.Close()

	img, err := imaging.Decode(in, imaging.AutoOrientation(true))
	if err != nil {
		return savedImage{}, fmt.Errorf("invalid image: %w", err)
	}

	dir := filepath.Join(uploadDir, productsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return savedImage{}, err
	}

	name := uuid.NewString()
	filename := name + extension
	thumbname := name + "_thumb.jpg"

	if err := imaging.Save(img, filepath.Join(dir, filename), imaging.JPEGQuality(90)); err != nil {
		return savedImage{}, err
	}

	thumb := imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
	if err := imaging.Save(thumb, filepath.Join(dir, thumbname), imaging.JPEGQuality(85)); err != nil {
		_ = os.Remove(filepath.Join(dir, filename))
		return savedImage{}, err
	}

	return savedImage{
		ImagePath:     uploadURL(productsSubdir + "/" + filename),
		ThumbnailPath: uploadURL(productsSubdir + "/" + thumbname),
	}, nil
}

func UploadProductImage(db *mongo.Database, uploadDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products/:id/image"
		defer handlePanic(c, route)

		id, ok := parseObjectIDParam(c, "id", route)
		if !ok {
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageSize+(1<<20))
		file, err := c.FormFile("image")
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "image file is required")
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		existing, err := findProduct(ctx, db, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		saved, err := saveImage(file, uploadDir)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		var raw bson.M
		err = db.Collection("products").FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
			"image_path":     saved.ImagePath,
			"thumbnail_path": saved.ThumbnailPath,
			"updated_at":     time.Now().UTC(),
		}}, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&raw)
		if err != nil {
			_ = safeDeleteUpload(uploadDir, saved.ImagePath)
			_ = safeDeleteUpload(uploadDir, saved.ThumbnailPath)
			respondDBError(c, route, err)
			return
		}

		for _, old := range []string{existing.ImagePath, existing.ThumbnailPath} {
			if err := safeDeleteUpload(uploadDir, old); err != nil {
				logger.Named("products").Warn("old upload not removed", zap.String("path", old), zap.Error(err))
			}
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondDBError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, product)
	}
}
