package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/siga-analytics/siga-predict/internal/errors"
	"github.com/siga-analytics/siga-predict/internal/middleware"
	"github.com/siga-analytics/siga-predict/internal/monitoring"
	"github.com/siga-analytics/siga-predict/internal/predict"
	"github.com/siga-analytics/siga-predict/internal/store"
	"github.com/siga-analytics/siga-predict/internal/types"
)

type server struct {
	store      *store.Store
	db         *store.DB
	classifier *predict.Classifier
	trainer    *predict.Trainer
	service    *predict.Service
	analyzer   *predict.Analyzer
	logger     *monitoring.Logger

	modelDir      string
	riskThreshold float64
	training      atomic.Bool
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	modelDir := getEnvOrDefault("MODEL_DIR", "./data/model")
	port := getEnvOrDefault("PORT", "8080")
	trainEpochs := getEnvIntOrDefault("TRAIN_EPOCHS", 100)
	riskThreshold := getEnvFloatOrDefault("RISK_THRESHOLD", predict.DefaultRiskThreshold)

	db, err := store.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	recordStore := store.NewStore()
	if err := db.LoadSnapshot(recordStore); err != nil {
		slog.Error("Failed to load record snapshot", "error", err)
		os.Exit(1)
	}

	classifier := predict.NewClassifierWithEpochs(trainEpochs)
	if err := classifier.Load(modelDir); err != nil {
		if apperrors.IsNotFound(err) {
			slog.Info("No persisted model found, starting untrained")
		} else {
			slog.Error("Failed to load persisted model", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("Persisted model restored", "model_dir", modelDir)
	}

	service := predict.NewService(classifier)
	srv := &server{
		store:         recordStore,
		db:            db,
		classifier:    classifier,
		trainer:       predict.NewTrainer(classifier),
		service:       service,
		analyzer:      predict.NewAnalyzer(service),
		logger:        monitoring.NewLogger(),
		modelDir:      modelDir,
		riskThreshold: riskThreshold,
	}

	students, courses, enrollments := recordStore.Counts()
	srv.logger.StoreLogger("startup", students, courses, enrollments)

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		srv.logger.RequestLogger(c.Request.Method, c.Request.URL.Path, c.ClientIP(),
			c.Writer.Status(), time.Since(start))
	})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsConfig))

	limiter := middleware.NewRateLimiter(10, 20)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "trained": srv.classifier.Trained()})
	})

	api := r.Group("/api/v1")
	api.Use(limiter.Handler())
	{
		api.POST("/students", srv.createStudent)
		api.GET("/students", srv.listStudents)
		api.GET("/students/:id", srv.getStudent)
		api.DELETE("/students/:id", srv.deleteStudent)

		api.POST("/courses", srv.createCourse)
		api.GET("/courses", srv.listCourses)
		api.GET("/courses/:code", srv.getCourse)
		api.DELETE("/courses/:code", srv.deleteCourse)
		api.GET("/courses/:code/stats", srv.courseStats)
		api.GET("/courses/:code/top", srv.topStudents)

		api.POST("/enrollments", srv.enroll)
		api.PUT("/enrollments/:id/:code", srv.updateGrade)

		api.POST("/data/snapshot", srv.saveSnapshot)
		api.POST("/data/import/csv", srv.importCSV)
		api.POST("/data/export/json", srv.exportJSON)
		api.POST("/data/import/json", srv.importJSON)

		api.POST("/model/train", srv.train)
		api.GET("/model/status", srv.modelStatus)
		api.POST("/model/save", srv.saveModel)
		api.POST("/model/load", srv.loadModel)
		api.GET("/model/runs", srv.trainingRuns)

		api.GET("/predictions/:id/:code", srv.predictOne)
		api.GET("/students/:id/predictions", srv.predictBatch)
		api.GET("/students/:id/recommendations", srv.recommend)
		api.GET("/analytics/at-risk", srv.atRisk)
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.SaveSnapshot(recordStore); err != nil {
		slog.Error("Failed to persist record snapshot on shutdown", "error", err)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloatOrDefault(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// --- student handlers ---

type createStudentRequest struct {
	ID        string `json:"id" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	BirthDate string `json:"birth_date" binding:"required"`
}

func (s *server) createStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	student, err := s.store.CreateStudent(req.ID, req.FirstName, req.LastName, req.Email, req.BirthDate)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, student)
}

func (s *server) listStudents(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.SearchStudents(c.Query("q")))
}

func (s *server) getStudent(c *gin.Context) {
	student, err := s.store.StudentByID(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (s *server) deleteStudent(c *gin.Context) {
	if err := s.store.DeleteStudent(c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- course handlers ---

type createCourseRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

func (s *server) createCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	course, err := s.store.CreateCourse(req.Code, req.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, course)
}

func (s *server) listCourses(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Courses())
}

func (s *server) getCourse(c *gin.Context) {
	course, err := s.store.CourseByCode(c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, course)
}

func (s *server) deleteCourse(c *gin.Context) {
	if err := s.store.DeleteCourse(c.Param("code")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) courseStats(c *gin.Context) {
	code := c.Param("code")
	if _, err := s.store.CourseByCode(code); err != nil {
		c.Error(err)
		return
	}

	passed, failed := s.store.PassFailCounts(code)
	c.JSON(http.StatusOK, gin.H{
		"course_code": code,
		"passed":      passed,
		"failed":      failed,
		"total":       passed + failed,
	})
}

func (s *server) topStudents(c *gin.Context) {
	code := c.Param("code")
	if _, err := s.store.CourseByCode(code); err != nil {
		c.Error(err)
		return
	}

	n, err := strconv.Atoi(c.DefaultQuery("n", "3"))
	if err != nil || n < 1 {
		c.Error(apperrors.NewValidationError("n must be a positive integer", c.Query("n")))
		return
	}

	c.JSON(http.StatusOK, s.store.TopStudents(code, n))
}

// --- enrollment handlers ---

type enrollRequest struct {
	StudentID  string  `json:"student_id" binding:"required"`
	CourseCode string  `json:"course_code" binding:"required"`
	Grade      float64 `json:"grade"`
}

func (s *server) enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := s.store.Enroll(req.StudentID, req.CourseCode, req.Grade); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusCreated)
}

type gradeRequest struct {
	Grade float64 `json:"grade"`
}

func (s *server) updateGrade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := s.store.UpdateGrade(c.Param("id"), c.Param("code"), req.Grade); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// --- data handlers ---

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *server) saveSnapshot(c *gin.Context) {
	if err := s.db.SaveSnapshot(s.store); err != nil {
		c.Error(apperrors.NewInternalError("failed to persist snapshot", err))
		return
	}

	students, courses, enrollments := s.store.Counts()
	s.logger.StoreLogger("snapshot", students, courses, enrollments)
	c.Status(http.StatusNoContent)
}

func (s *server) importCSV(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	imported, skipped, err := s.store.LoadStudentsCSV(req.Path)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": imported, "skipped": skipped})
}

func (s *server) exportJSON(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := s.store.SaveJSON(req.Path); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *server) importJSON(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if err := s.store.LoadJSON(req.Path); err != nil {
		c.Error(err)
		return
	}

	students, courses, enrollments := s.store.Counts()
	s.logger.StoreLogger("import", students, courses, enrollments)
	c.Status(http.StatusNoContent)
}

// --- model handlers ---

// train kicks off a background training run. Training is CPU-bound and not
// cancellable; only one run may be in flight at a time.
func (s *server) train(c *gin.Context) {
	if !s.training.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "a training run is already in progress"})
		return
	}

	_, _, enrollments := s.store.Counts()
	if enrollments < predict.MinTrainingExamples {
		s.training.Store(false)
		c.Error(apperrors.NewInsufficientDataError(enrollments, predict.MinTrainingExamples))
		return
	}

	go func() {
		defer s.training.Store(false)

		started := time.Now()
		metrics, err := s.trainer.Train(s.store)
		if err != nil {
			slog.Error("Training run failed", "error", err)
			return
		}

		run := types.TrainingRun{
			ID:         uuid.New().String(),
			Metrics:    metrics,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		if err := s.db.RecordTrainingRun(run); err != nil {
			slog.Error("Failed to record training run", "error", err)
		}
		if err := s.classifier.Save(s.modelDir); err != nil {
			slog.Error("Failed to persist trained model", "error", err)
		}

		s.logger.TrainingLogger(run.ID, metrics.Examples, metrics.Epochs,
			metrics.Accuracy, metrics.ValLoss, time.Since(started))
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "training started"})
}

func (s *server) modelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"trained":  s.classifier.Trained(),
		"training": s.training.Load(),
	})
}

func (s *server) saveModel(c *gin.Context) {
	if err := s.classifier.Save(s.modelDir); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) loadModel(c *gin.Context) {
	if err := s.classifier.Load(s.modelDir); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) trainingRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		c.Error(apperrors.NewValidationError("limit must be a positive integer", c.Query("limit")))
		return
	}

	runs, err := s.db.TrainingRuns(limit)
	if err != nil {
		c.Error(apperrors.NewInternalError("failed to read training runs", err))
		return
	}

	c.JSON(http.StatusOK, runs)
}

// --- prediction handlers ---

func (s *server) predictOne(c *gin.Context) {
	start := time.Now()

	result, err := s.service.Predict(s.store, c.Param("id"), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}

	s.logger.PredictionLogger(c.Param("id"), c.Param("code"), result.Probability, time.Since(start))
	c.JSON(http.StatusOK, result)
}

func (s *server) predictBatch(c *gin.Context) {
	results, skipped, err := s.service.PredictBatch(s.store, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"predictions": results, "skipped": skipped})
}

func (s *server) recommend(c *gin.Context) {
	studentID := c.Param("id")

	// The core's empty result cannot distinguish an unknown student from one
	// with nothing to recommend; resolve that at the API boundary.
	if _, err := s.store.StudentByID(studentID); err != nil {
		c.Error(err)
		return
	}

	start := time.Now()
	entries, skipped := s.analyzer.RecommendCourses(s.store, studentID)
	s.logger.SweepLogger("recommendations", len(entries), len(skipped), time.Since(start))

	c.JSON(http.StatusOK, gin.H{"recommendations": entries, "skipped": skipped})
}

func (s *server) atRisk(c *gin.Context) {
	threshold := s.riskThreshold
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			c.Error(apperrors.NewValidationError("threshold must be in [0,1]", raw))
			return
		}
		threshold = parsed
	}

	start := time.Now()
	entries, skipped := s.analyzer.IdentifyAtRisk(s.store, threshold)
	s.logger.SweepLogger("at_risk", len(entries), len(skipped), time.Since(start))

	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "at_risk": entries, "skipped": skipped})
}
