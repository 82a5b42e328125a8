package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lautwerk/speech_go_server/config"
	"github.com/lautwerk/speech_go_server/internal/pkg/response"
	"github.com/lautwerk/speech_go_server/internal/service"
)

type JobHandler struct {
	jobService *service.JobService
	cfg        *config.Config
}

func NewJobHandler(jobService *service.JobService, cfg *config.Config) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		cfg:        cfg,
	}
}

// Upload accepts a WAV file without starting processing.
// POST /upload
func (h *JobHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "missing file field")
		return
	}
	defer file.Close()

	if header.Size > h.cfg.Upload.MaxSize {
		response.ParamError(c, "file too large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Upload.MaxSize+1))
	if err != nil {
		response.ServerError(c, "failed to read upload")
		return
	}

	job, err := h.jobService.Submit(c.Request.Context(), header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotWav),
			errors.Is(err, service.ErrEmptyUpload),
			errors.Is(err, service.ErrFileTooLarge):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "failed to store upload")
		}
		return
	}

	response.Success(c, job)
}

// Start begins processing a previously uploaded job.
// POST /start-processing/:id
func (h *JobHandler) Start(c *gin.Context) {
	job, err := h.jobService.Start(c.Request.Context(), c.Param("id"), includePhonetics(c))
	if err != nil {
		h.writeJobErr(c, err)
		return
	}
	response.Success(c, job)
}

// Status returns the current job snapshot.
// GET /status/:id
func (h *JobHandler) Status(c *gin.Context) {
	job, err := h.jobService.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeJobErr(c, err)
		return
	}
	response.Success(c, job)
}

// Reprocess runs a fresh attempt over an existing job's audio.
// POST /reprocess/:id
func (h *JobHandler) Reprocess(c *gin.Context) {
	job, err := h.jobService.Reprocess(c.Request.Context(), c.Param("id"), includePhonetics(c))
	if err != nil {
		h.writeJobErr(c, err)
		return
	}
	response.Success(c, job)
}

// UseSample processes the built-in sample audio.
// POST /use-sample
func (h *JobHandler) UseSample(c *gin.Context) {
	job, err := h.jobService.UseSample(c.Request.Context(), includePhonetics(c))
	if err != nil {
		h.writeJobErr(c, err)
		return
	}
	response.Success(c, job)
}

// SampleFile serves the sample WAV directly.
// GET /sample.wav
func (h *JobHandler) SampleFile(c *gin.Context) {
	path, err := h.jobService.SampleFile()
	if err != nil {
		response.NotFoundError(c, "sample audio file not found")
		return
	}
	c.FileAttachment(path, "sample.wav")
}

func (h *JobHandler) writeJobErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFoundError(c, "job not found")
	case errors.Is(err, service.ErrAudioMissing):
		response.NotFoundError(c, "audio file no longer available")
	case errors.Is(err, service.ErrSampleMissing):
		response.NotFoundError(c, "sample audio file not found")
	case errors.Is(err, service.ErrJobBusy):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrQueueFull):
		response.ServerError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

// includePhonetics reads the flag the client posts, accepting form or
// query spelling.
func includePhonetics(c *gin.Context) bool {
	v := c.PostForm("includePhonetics")
	if v == "" {
		v = c.Query("includePhonetics")
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}
