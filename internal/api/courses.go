package api

import (
	"net/http"

	"github.com/koopa0/tutor/internal/log"
)

type coursesHandler struct {
	courses CourseLister
	logger  log.Logger
}

type coursesResponse struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// list handles GET /api/courses.
func (h *coursesHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.courses.CourseCount(ctx)
	if err != nil {
		h.logger.Error("course count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "index_unavailable", "could not read the course index")
		return
	}
	titles, err := h.courses.CourseTitles(ctx)
	if err != nil {
		h.logger.Error("course titles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "index_unavailable", "could not read the course index")
		return
	}
	if titles == nil {
		titles = []string{}
	}

	writeJSON(w, http.StatusOK, coursesResponse{
		TotalCourses: count,
		CourseTitles: titles,
	})
}
