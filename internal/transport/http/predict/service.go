package predict

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pestscan-server/internal/domain/image"
	"pestscan-server/internal/domain/inference"
	"pestscan-server/internal/platform/config"
	"pestscan-server/internal/platform/errors"
	"pestscan-server/internal/platform/logging"
	httptransport "pestscan-server/internal/transport/http"
	"pestscan-server/internal/utils"
)

// MaxBatchFiles caps the number of files in one batch upload.
const MaxBatchFiles = 20

var allowedContentTypes = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Options wires the prediction service. History is nil when storage is
// disabled.
type Options struct {
	Classifier Classifier
	Model      ModelInfoProvider
	History    HistoryStore
	Security   config.SecurityConfig
	Logger     *logging.Logger
}

// Service exposes the classification pipeline over HTTP.
type Service struct {
	classifier Classifier
	model      ModelInfoProvider
	history    HistoryStore
	security   config.SecurityConfig
	logger     *logging.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Classifier == nil {
		return nil, errors.New(errors.KindConfig, "predict.new", "classifier is required")
	}
	if opts.Model == nil {
		return nil, errors.New(errors.KindConfig, "predict.new", "model is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Service{
		classifier: opts.Classifier,
		model:      opts.Model,
		history:    opts.History,
		security:   opts.Security,
		logger:     opts.Logger,
	}, nil
}

// Register 注册预测相关的HTTP路由
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.POST("/predict", s.handlePredict)
	router.POST("/predict/batch", s.handleBatch)
	router.GET("/predict/model-info", s.handleModelInfo)
	router.GET("/predict/labels", s.handleLabels)
	router.GET("/predict/history", s.handleHistory)

	s.logger.InfoTag("HTTP", "prediction routes registered")
	return nil
}

// handlePredict 单张图片分类
// @Summary Classify one photograph
// @Tags Predict
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "jpeg, png or webp image"
// @Param confidence_threshold query number false "per-anchor threshold in [0, 1]" default(0.55)
// @Success 200 {object} inference.ClassificationResult
// @Failure 400 {object} httptransport.APIResponse
// @Failure 503 {object} httptransport.APIResponse
// @Router /predict [post]
func (s *Service) handlePredict(c *gin.Context) {
	threshold, err := parseThreshold(c)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "file field is required", nil)
		return
	}

	item, status := s.classifyUpload(c.Request.Context(), header, threshold)
	switch {
	case item.Result == nil:
		httptransport.RespondError(c, status, item.Error, nil)
	case !item.Result.Success:
		s.logger.WarnTag("HTTP", "classification of %s failed: %s", item.Filename, item.Result.Error)
		httptransport.RespondError(c, status, item.Result.Error, item.Result)
	default:
		httptransport.RespondSuccess(c, http.StatusOK, item.Result, item.Result.StatusMessage)
	}
}

// handleBatch 批量图片分类
// @Summary Classify several photographs
// @Tags Predict
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "up to 20 images"
// @Param confidence_threshold query number false "per-anchor threshold in [0, 1]" default(0.55)
// @Success 200 {object} BatchResponse
// @Router /predict/batch [post]
func (s *Service) handleBatch(c *gin.Context) {
	threshold, err := parseThreshold(c)
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "multipart form is required", nil)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		httptransport.RespondError(c, http.StatusBadRequest, "files field is required", nil)
		return
	}
	if len(files) > MaxBatchFiles {
		httptransport.RespondError(c, http.StatusBadRequest,
			fmt.Sprintf("too many files: %d (max %d)", len(files), MaxBatchFiles), nil)
		return
	}

	resp := BatchResponse{Results: make([]BatchItem, 0, len(files)), Total: len(files), Counts: map[string]int{}}
	for _, header := range files {
		item, _ := s.classifyUpload(c.Request.Context(), header, threshold)
		if item.Result != nil {
			resp.Counts[item.Result.StatusLabel()]++
		} else {
			resp.Counts[inference.StatusFailed]++
		}
		resp.Results = append(resp.Results, item)
	}
	httptransport.RespondSuccess(c, http.StatusOK, resp, "")
}

// handleModelInfo 模型信息
// @Summary Model handle state
// @Tags Predict
// @Produce json
// @Success 200 {object} inference.ModelInfo
// @Router /predict/model-info [get]
func (s *Service) handleModelInfo(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, s.model.Info(), "")
}

// handleLabels 标签列表
// @Router /predict/labels [get]
func (s *Service) handleLabels(c *gin.Context) {
	labels := s.model.Labels()
	httptransport.RespondSuccess(c, http.StatusOK, LabelsResponse{Labels: labels, Count: len(labels)}, "")
}

// handleHistory 最近的分类审计记录
// @Param limit query int false "number of records" default(20)
// @Router /predict/history [get]
func (s *Service) handleHistory(c *gin.Context) {
	if s.history == nil {
		httptransport.RespondError(c, http.StatusNotFound, "audit storage is disabled", nil)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httptransport.RespondError(c, http.StatusBadRequest, "limit must be an integer", nil)
			return
		}
		limit = v
	}

	ctx := c.Request.Context()
	records, err := s.history.Recent(ctx, limit)
	if err != nil {
		s.logger.ErrorTag("STORAGE", "history query failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, errors.Message(err), nil)
		return
	}
	counts, err := s.history.CountByStatus(ctx)
	if err != nil {
		s.logger.ErrorTag("STORAGE", "history count failed: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, errors.Message(err), nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, HistoryResponse{Records: records, Counts: counts}, "")
}

// classifyUpload validates and classifies one multipart file. The status is
// the HTTP code matching the outcome.
func (s *Service) classifyUpload(ctx context.Context, header *multipart.FileHeader, threshold float64) (BatchItem, int) {
	item := BatchItem{Filename: utils.SourceName(header.Filename)}

	format, ok := s.declaredFormat(header)
	if !ok {
		item.Error = fmt.Sprintf("Invalid file type. Allowed: %s", strings.Join(s.allowedFormats(), ", "))
		return item, http.StatusBadRequest
	}

	maxSize := s.maxFileSize()
	if header.Size > maxSize {
		item.Error = fmt.Sprintf("file size exceeds limit of %d bytes", maxSize)
		return item, http.StatusRequestEntityTooLarge
	}

	f, err := header.Open()
	if err != nil {
		item.Error = "cannot read uploaded file"
		return item, http.StatusBadRequest
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		item.Error = "cannot read uploaded file"
		return item, http.StatusBadRequest
	}
	if int64(len(data)) > maxSize {
		item.Error = fmt.Sprintf("file size exceeds limit of %d bytes", maxSize)
		return item, http.StatusRequestEntityTooLarge
	}

	result := s.classifier.Run(ctx, inference.Request{
		Data:      data,
		Format:    format,
		Source:    item.Filename,
		Threshold: threshold,
	})
	item.Result = result
	if !result.Success {
		item.Error = result.Error
		return item, StatusFor(result.ErrorKind)
	}
	return item, http.StatusOK
}

// declaredFormat resolves the format from the part's content type, falling
// back to the file extension for generic content types.
func (s *Service) declaredFormat(header *multipart.FileHeader) (string, bool) {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	format, ok := allowedContentTypes[contentType]
	if !ok {
		if contentType != "" && contentType != "application/octet-stream" {
			return "", false
		}
		format = image.NormalizeFormat(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	}
	for _, allowed := range s.allowedFormats() {
		if image.NormalizeFormat(allowed) == format {
			return format, true
		}
	}
	return "", false
}

func (s *Service) allowedFormats() []string {
	if len(s.security.AllowedFormats) == 0 {
		return []string{"jpeg", "png", "webp"}
	}
	return s.security.AllowedFormats
}

func (s *Service) maxFileSize() int64 {
	if s.security.MaxFileSize <= 0 {
		return 10 * 1024 * 1024
	}
	return s.security.MaxFileSize
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindModel:
		return http.StatusServiceUnavailable
	case errors.KindDecode, errors.KindDomain:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseThreshold(c *gin.Context) (float64, error) {
	raw := c.Query("confidence_threshold")
	if raw == "" {
		return inference.DefaultConfidenceThreshold, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("confidence_threshold must be a number")
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("confidence_threshold must be within [0, 1]")
	}
	return v, nil
}
