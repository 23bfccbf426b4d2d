package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/aspy/internal/app/service/statistics"
	"github.com/fatflowers/aspy/pkg/types"
)

// ListSubscriptionsQuery is the query string of the admin subscription list.
type ListSubscriptionsQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	UserID   string `form:"user_id"`
}

func (q ListSubscriptionsQuery) toRequest() statistics.SubscriptionListRequest {
	req := statistics.SubscriptionListRequest{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		req.Filters = append(req.Filters, &types.CommonFilter{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{q.Status}})
	}
	if q.UserID != "" {
		req.Filters = append(req.Filters, &types.CommonFilter{Field: "user_id", Operator: types.CommonFilterOperatorEq, Values: []any{q.UserID}})
	}
	return req
}

// @Summary      Dashboard figures (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOverview
// @Router       /api/v1/admin/stats [get]
func ApiAdminStats(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Overview(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated list of subscriptions with their latest payment.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        page       query int    false "Page, from 1"
// @Param        page_size  query int    false "Page size, at most 100"
// @Param        status     query string false "Subscription status"
// @Param        user_id    query string false "User id"
// @Success      200  {object}  handlers.RespSubscriptionPage
// @Router       /api/v1/admin/subscriptions [get]
func ApiAdminSubscriptions(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q ListSubscriptionsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			writeBindError(c, err)
			return
		}
		res, err := svc.ListSubscriptions(c.Request.Context(), q.toRequest())
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Daily Statistics (Admin)
// @Description  Active subscriptions per plan and revenue per day. Defaults to the last 30 days.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        from query string false "First day, YYYY-MM-DD"
// @Param        to   query string false "Last day, YYYY-MM-DD"
// @Success      200  {object}  handlers.RespDailyStatistic
// @Router       /api/v1/admin/statistics/daily [get]
func ApiAdminDailyStatistics(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		to := time.Now().UTC()
		from := to.AddDate(0, 0, -29)
		var err error
		if v := c.Query("from"); v != "" {
			if from, err = time.Parse(time.DateOnly, v); err != nil {
				writeBindError(c, fmt.Errorf("invalid from: %w", err))
				return
			}
		}
		if v := c.Query("to"); v != "" {
			if to, err = time.Parse(time.DateOnly, v); err != nil {
				writeBindError(c, fmt.Errorf("invalid to: %w", err))
				return
			}
		}
		if to.Before(from) {
			writeBindError(c, fmt.Errorf("invalid date range: from is after to"))
			return
		}
		res, err := svc.Daily(c.Request.Context(), from, to)
		if err != nil {
			writeError(c, log, err)
			return
		}
		ok(c, res)
	}
}

func RegisterAdminRoutes(r gin.IRouter, stats *statistics.Service, log *zap.SugaredLogger) {
	r.GET("/stats", ApiAdminStats(stats, log))
	r.GET("/subscriptions", ApiAdminSubscriptions(stats, log))
	r.GET("/statistics/daily", ApiAdminDailyStatistics(stats, log))
}
