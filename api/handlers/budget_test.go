package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/promptgate/api"
	"github.com/BaSui01/promptgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 模拟预算引擎
// =============================================================================

type mockBudgetService struct {
	approvalFunc func(req types.BudgetRequest) (types.BudgetApproval, error)
	recordFunc   func(requestID string, in, out int64) (*types.UsageVariance, error)
	daily        types.UsagePeriodStats
	monthly      types.UsagePeriodStats
	remaining    types.RemainingBudget
	projected    types.ProjectedUsage
}

func (m *mockBudgetService) RequestApproval(req types.BudgetRequest) (types.BudgetApproval, error) {
	if m.approvalFunc != nil {
		return m.approvalFunc(req)
	}
	return types.BudgetApproval{}, errors.New("not implemented")
}

func (m *mockBudgetService) RecordUsage(requestID string, in, out int64) (*types.UsageVariance, error) {
	if m.recordFunc != nil {
		return m.recordFunc(requestID, in, out)
	}
	return nil, errors.New("not implemented")
}

func (m *mockBudgetService) GetDailyUsage() types.UsagePeriodStats     { return m.daily }
func (m *mockBudgetService) GetMonthlyUsage() types.UsagePeriodStats   { return m.monthly }
func (m *mockBudgetService) GetRemainingBudget() types.RemainingBudget { return m.remaining }
func (m *mockBudgetService) GetProjectedUsage() types.ProjectedUsage   { return m.projected }

// postJSON 构造带 JSON 体的 POST 请求
func postJSON(t *testing.T, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// decodeData 将信封中的 Data 再解码为目标类型
func decodeData(t *testing.T, body *bytes.Buffer, dst any) {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	require.True(t, resp.Success)
	dataBytes, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(dataBytes, dst))
}

// =============================================================================
// 🧪 BudgetHandler 测试
// =============================================================================

func TestBudgetHandler_HandleApproval(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		request        api.ApprovalRequest
		mockApproval   types.BudgetApproval
		mockError      error
		expectedStatus int
		checkResponse  func(*testing.T, *types.BudgetApproval)
	}{
		{
			name: "approved request",
			request: api.ApprovalRequest{
				RequestID:             "req-1",
				ToolName:              "code-review",
				EstimatedInputTokens:  1000,
				EstimatedOutputTokens: 500,
				Priority:              "medium",
			},
			mockApproval: types.BudgetApproval{
				Approved:        true,
				RequestID:       "req-1",
				AllocatedTokens: types.TokenAllocation{Input: 1000, Output: 500},
				EstimatedCost:   0.06,
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, approval *types.BudgetApproval) {
				assert.True(t, approval.Approved)
				assert.Equal(t, "req-1", approval.RequestID)
				assert.Equal(t, int64(1000), approval.AllocatedTokens.Input)
				assert.InDelta(t, 0.06, approval.EstimatedCost, 1e-9)
			},
		},
		{
			name: "rejection is a 200 with approved=false",
			request: api.ApprovalRequest{
				RequestID:             "req-2",
				ToolName:              "code-review",
				EstimatedInputTokens:  900000,
				EstimatedOutputTokens: 900000,
			},
			mockApproval: types.BudgetApproval{
				Approved:  false,
				RequestID: "req-2",
				Reason:    "daily budget exhausted",
				Alternatives: &types.Alternatives{
					ReducedTokens:    1000,
					FallbackStrategy: "compression",
				},
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, approval *types.BudgetApproval) {
				assert.False(t, approval.Approved)
				assert.Equal(t, "daily budget exhausted", approval.Reason)
				require.NotNil(t, approval.Alternatives)
				assert.Equal(t, int64(1000), approval.Alternatives.ReducedTokens)
			},
		},
		{
			name: "missing request_id",
			request: api.ApprovalRequest{
				ToolName: "code-review",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing tool_name",
			request: api.ApprovalRequest{
				RequestID: "req-3",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "negative tokens",
			request: api.ApprovalRequest{
				RequestID:            "req-4",
				ToolName:             "code-review",
				EstimatedInputTokens: -10,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid priority",
			request: api.ApprovalRequest{
				RequestID: "req-5",
				ToolName:  "code-review",
				Priority:  "urgent",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "negative max_cost",
			request: api.ApprovalRequest{
				RequestID: "req-6",
				ToolName:  "code-review",
				MaxCost:   -1,
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "engine validation error",
			request: api.ApprovalRequest{
				RequestID: "req-7",
				ToolName:  "code-review",
			},
			mockError:      types.NewError(types.ErrInvalidRequest, "estimated tokens exceed per-request cap"),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockBudgetService{
				approvalFunc: func(req types.BudgetRequest) (types.BudgetApproval, error) {
					if tt.mockError != nil {
						return types.BudgetApproval{}, tt.mockError
					}
					return tt.mockApproval, nil
				},
			}

			handler := NewBudgetHandler(service, logger)

			w := httptest.NewRecorder()
			r := postJSON(t, "/v1/budget/approval", tt.request)

			handler.HandleApproval(w, r)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK && tt.checkResponse != nil {
				var approval types.BudgetApproval
				decodeData(t, w.Body, &approval)
				tt.checkResponse(t, &approval)
			}
		})
	}
}

func TestBudgetHandler_HandleApproval_MethodNotAllowed(t *testing.T) {
	handler := NewBudgetHandler(&mockBudgetService{}, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/budget/approval", nil)

	handler.HandleApproval(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestBudgetHandler_HandleUsageReport(t *testing.T) {
	logger := zap.NewNop()

	t.Run("settled request returns variance", func(t *testing.T) {
		service := &mockBudgetService{
			recordFunc: func(requestID string, in, out int64) (*types.UsageVariance, error) {
				assert.Equal(t, "req-1", requestID)
				return &types.UsageVariance{
					RequestID:       requestID,
					EstimatedTokens: 1500,
					ActualTokens:    in + out,
					TokenDelta:      in + out - 1500,
					EstimatedCost:   0.06,
					ActualCost:      0.08,
					CostDelta:       0.02,
				}, nil
			},
		}
		handler := NewBudgetHandler(service, logger)

		w := httptest.NewRecorder()
		r := postJSON(t, "/v1/budget/usage", api.UsageReport{
			RequestID:          "req-1",
			ActualInputTokens:  1100,
			ActualOutputTokens: 900,
		})

		handler.HandleUsageReport(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var variance types.UsageVariance
		decodeData(t, w.Body, &variance)
		assert.Equal(t, int64(2000), variance.ActualTokens)
		assert.Equal(t, int64(500), variance.TokenDelta)
	})

	t.Run("unknown request is a no-op", func(t *testing.T) {
		service := &mockBudgetService{
			recordFunc: func(requestID string, in, out int64) (*types.UsageVariance, error) {
				return nil, nil
			},
		}
		handler := NewBudgetHandler(service, logger)

		w := httptest.NewRecorder()
		r := postJSON(t, "/v1/budget/usage", api.UsageReport{
			RequestID:          "ghost",
			ActualInputTokens:  10,
			ActualOutputTokens: 10,
		})

		handler.HandleUsageReport(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Data)
	})

	t.Run("missing request_id", func(t *testing.T) {
		handler := NewBudgetHandler(&mockBudgetService{}, logger)

		w := httptest.NewRecorder()
		r := postJSON(t, "/v1/budget/usage", api.UsageReport{ActualInputTokens: 10})

		handler.HandleUsageReport(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative actual tokens", func(t *testing.T) {
		handler := NewBudgetHandler(&mockBudgetService{}, logger)

		w := httptest.NewRecorder()
		r := postJSON(t, "/v1/budget/usage", api.UsageReport{
			RequestID:         "req-1",
			ActualInputTokens: -5,
		})

		handler.HandleUsageReport(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBudgetHandler_Snapshots(t *testing.T) {
	logger := zap.NewNop()
	now := time.Now()

	service := &mockBudgetService{
		daily: types.UsagePeriodStats{
			Period:       types.PeriodDaily,
			StartDate:    now,
			TotalTokens:  types.TokenTotals{Input: 100, Output: 50, Total: 150},
			TotalCost:    0.009,
			RequestCount: 3,
		},
		monthly: types.UsagePeriodStats{
			Period:       types.PeriodMonthly,
			TotalCost:    1.2,
			RequestCount: 40,
		},
		remaining: types.RemainingBudget{Daily: 9.99, Monthly: 98.8},
		projected: types.ProjectedUsage{Daily: 0.02, Monthly: 1.8},
	}
	handler := NewBudgetHandler(service, logger)

	t.Run("daily usage", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/budget/usage/daily", nil)

		handler.HandleDailyUsage(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var stats types.UsagePeriodStats
		decodeData(t, w.Body, &stats)
		assert.Equal(t, types.PeriodDaily, stats.Period)
		assert.Equal(t, int64(150), stats.TotalTokens.Total)
		assert.Equal(t, int64(3), stats.RequestCount)
	})

	t.Run("monthly usage", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/budget/usage/monthly", nil)

		handler.HandleMonthlyUsage(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var stats types.UsagePeriodStats
		decodeData(t, w.Body, &stats)
		assert.Equal(t, types.PeriodMonthly, stats.Period)
		assert.InDelta(t, 1.2, stats.TotalCost, 1e-9)
	})

	t.Run("remaining budget", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/budget/remaining", nil)

		handler.HandleRemaining(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var remaining types.RemainingBudget
		decodeData(t, w.Body, &remaining)
		assert.InDelta(t, 9.99, remaining.Daily, 1e-9)
		assert.InDelta(t, 98.8, remaining.Monthly, 1e-9)
	})

	t.Run("projected usage", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/budget/projected", nil)

		handler.HandleProjected(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var projected types.ProjectedUsage
		decodeData(t, w.Body, &projected)
		assert.InDelta(t, 0.02, projected.Daily, 1e-9)
	})

	t.Run("post rejected on snapshot endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/budget/remaining", nil)

		handler.HandleRemaining(w, r)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
