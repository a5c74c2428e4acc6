package e2e

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createPublishedEvent はイベントを作成して公開する
func createPublishedEvent(t *testing.T, server *TestServer, capacity, priceAmount int) string {
	t.Helper()

	body := map[string]interface{}{
		"title":        "E2Eテストイベント",
		"location":     "テスト会場",
		"starts_at":    time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
		"ends_at":      time.Now().Add(7*24*time.Hour + 2*time.Hour).Format(time.RFC3339),
		"capacity":     capacity,
		"price_amount": priceAmount,
	}
	rec := server.Request("POST", "/api/v1/events", body, map[string]string{
		"X-User-ID": "e2e-vendor",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &resp))
	eventID := resp["id"].(string)

	rec = server.Request("PATCH", fmt.Sprintf("/api/v1/events/%s/status", eventID),
		map[string]interface{}{"status": "published"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	return eventID
}

// TestE2E_HealthCheck はヘルスチェックをテスト
func TestE2E_HealthCheck(t *testing.T) {
	server := getTestServer(t)

	rec := server.Request("GET", "/api/v1/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, unmarshalBody(rec, &resp))
	assert.Equal(t, "ok", resp["status"])
}

// TestE2E_FreeBookingJourney は無料イベントの予約ジャーニーをテスト
func TestE2E_FreeBookingJourney(t *testing.T) {
	server := getTestServer(t)

	userID := "e2e-user-yamada"
	eventID := createPublishedEvent(t, server, 20, 0)
	var bookingID string

	t.Run("予約作成", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/bookings",
			map[string]interface{}{"event_id": eventID},
			map[string]string{"X-User-ID": userID})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		bookingID = resp["id"].(string)
		assert.Equal(t, "confirmed", resp["status"])
	})

	t.Run("残席数確認", func(t *testing.T) {
		rec := server.Request("GET", fmt.Sprintf("/api/v1/events/%s/availability", eventID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Equal(t, float64(1), resp["confirmed"])
		assert.Equal(t, float64(19), resp["remaining"])
	})

	t.Run("予約一覧確認", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/bookings", nil, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, bookingID, resp[0]["id"])
	})

	t.Run("チェックイン記録", func(t *testing.T) {
		rec := server.Request("PATCH", fmt.Sprintf("/api/v1/bookings/%s/status", bookingID),
			map[string]interface{}{"status": "checked_in"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Equal(t, "checked_in", resp["status"])
	})
}

// TestE2E_BookingIdempotency は同一ユーザーの再予約をテスト
func TestE2E_BookingIdempotency(t *testing.T) {
	server := getTestServer(t)

	eventID := createPublishedEvent(t, server, 10, 0)
	userID := "e2e-user-idem"
	body := map[string]interface{}{"event_id": eventID}
	headers := map[string]string{"X-User-ID": userID}

	rec1 := server.Request("POST", "/api/v1/bookings", body, headers)
	require.Equal(t, http.StatusCreated, rec1.Code)
	var resp1 map[string]interface{}
	require.NoError(t, unmarshalBody(rec1, &resp1))

	rec2 := server.Request("POST", "/api/v1/bookings", body, headers)
	require.Equal(t, http.StatusCreated, rec2.Code)
	var resp2 map[string]interface{}
	require.NoError(t, unmarshalBody(rec2, &resp2))

	// 同じ予約が返り、2件目は作られない
	assert.Equal(t, resp1["id"], resp2["id"])

	rec := server.Request("GET", fmt.Sprintf("/api/v1/events/%s/bookings", eventID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &list))
	assert.Len(t, list, 1)
}

// TestE2E_WaitlistPromotion は満席時のキャンセル待ちとFIFO昇格をテスト
func TestE2E_WaitlistPromotion(t *testing.T) {
	server := getTestServer(t)

	eventID := createPublishedEvent(t, server, 1, 0)
	var bookingA, bookingB string

	t.Run("ユーザーAが確定", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/bookings",
			map[string]interface{}{"event_id": eventID},
			map[string]string{"X-User-ID": "user-A"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		bookingA = resp["id"].(string)
		assert.Equal(t, "confirmed", resp["status"])
	})

	t.Run("ユーザーBはキャンセル待ち", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/bookings",
			map[string]interface{}{"event_id": eventID},
			map[string]string{"X-User-ID": "user-B"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		bookingB = resp["id"].(string)
		assert.Equal(t, "waitlisted", resp["status"])
	})

	t.Run("Aのキャンセルと同時にBが昇格", func(t *testing.T) {
		rec := server.Request("POST", fmt.Sprintf("/api/v1/bookings/%s/cancel", bookingA),
			nil, map[string]string{"X-User-ID": "user-A"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Equal(t, "cancelled", resp["cancelled"]["status"])
		require.NotNil(t, resp["promoted"])
		assert.Equal(t, bookingB, resp["promoted"]["id"])
		assert.Equal(t, "confirmed", resp["promoted"]["status"])
	})

	t.Run("キャンセルの再実行で二重昇格しない", func(t *testing.T) {
		rec := server.Request("POST", fmt.Sprintf("/api/v1/bookings/%s/cancel", bookingA),
			nil, map[string]string{"X-User-ID": "user-A"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Nil(t, resp["promoted"])
	})

	t.Run("確定数が定員を超えない", func(t *testing.T) {
		rec := server.Request("GET", fmt.Sprintf("/api/v1/events/%s/availability", eventID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Equal(t, float64(1), resp["confirmed"])
		assert.Equal(t, float64(0), resp["remaining"])
	})
}

// TestE2E_ConcurrentBookingCapacity は同時予約の定員不変条件をテスト
// 実際の分散ロックとDBトランザクションが count-then-insert を直列化する
func TestE2E_ConcurrentBookingCapacity(t *testing.T) {
	server := getTestServer(t)

	const (
		capacity = 5
		numUsers = 20
	)
	eventID := createPublishedEvent(t, server, capacity, 0)

	var confirmedCount int32
	var waitlistedCount int32
	var failedCount int32
	var wg sync.WaitGroup

	for i := 0; i < numUsers; i++ {
		wg.Add(1)
		go func(userNum int) {
			defer wg.Done()
			userID := fmt.Sprintf("e2e-user-%d", userNum)
			// ロック競合で弾かれたリクエストはクライアントと同様に再試行する
			// （予約作成は冪等なので再試行は安全）
			for attempt := 0; attempt < 20; attempt++ {
				rec := server.Request("POST", "/api/v1/bookings",
					map[string]interface{}{"event_id": eventID},
					map[string]string{"X-User-ID": userID})
				if rec.Code == http.StatusCreated {
					var resp map[string]interface{}
					if err := unmarshalBody(rec, &resp); err == nil {
						switch resp["status"] {
						case "confirmed":
							atomic.AddInt32(&confirmedCount, 1)
							return
						case "waitlisted":
							atomic.AddInt32(&waitlistedCount, 1)
							return
						}
					}
					break
				}
				time.Sleep(50 * time.Millisecond)
			}
			atomic.AddInt32(&failedCount, 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), confirmedCount, "定員ちょうどが確定")
	assert.Equal(t, int32(numUsers-capacity), waitlistedCount, "残りは全員キャンセル待ち")
	assert.Equal(t, int32(0), failedCount, "再試行で全リクエストが成立する")
	t.Logf("確定: %d, キャンセル待ち: %d, 失敗: %d", confirmedCount, waitlistedCount, failedCount)

	// サーバー側の集計でも確定数が定員を超えていない
	rec := server.Request("GET", fmt.Sprintf("/api/v1/events/%s/bookings?limit=100", eventID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &list))
	require.Len(t, list, numUsers)

	confirmed := 0
	for _, b := range list {
		if b["status"] == "confirmed" {
			confirmed++
		}
	}
	assert.Equal(t, capacity, confirmed)

	rec = server.Request("GET", fmt.Sprintf("/api/v1/events/%s/availability", eventID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var avail map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &avail))
	assert.Equal(t, float64(0), avail["remaining"])
}

// TestE2E_ZeroCapacityEvent は定員0のイベントをテスト
// 作成・公開は受け付けられ、予約は全てキャンセル待ちになる
func TestE2E_ZeroCapacityEvent(t *testing.T) {
	server := getTestServer(t)

	eventID := createPublishedEvent(t, server, 0, 0)

	rec := server.Request("POST", "/api/v1/bookings",
		map[string]interface{}{"event_id": eventID},
		map[string]string{"X-User-ID": "e2e-zero-user"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &resp))
	assert.Equal(t, "waitlisted", resp["status"])

	rec = server.Request("GET", fmt.Sprintf("/api/v1/events/%s/availability", eventID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var avail map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &avail))
	assert.Equal(t, float64(0), avail["capacity"])
	assert.Equal(t, float64(0), avail["remaining"])
}

// TestE2E_PaidCheckoutFlow は有料イベントのチェックアウトとWebhookをテスト
func TestE2E_PaidCheckoutFlow(t *testing.T) {
	server := getTestServer(t)

	eventID := createPublishedEvent(t, server, 1, 2500)
	userID := "e2e-payer"
	var sessionRef string

	t.Run("チェックアウト開始でホールドが作成される", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/checkout",
			map[string]interface{}{"event_id": eventID},
			map[string]string{"X-User-ID": userID})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		sessionRef = resp["session_ref"].(string)
		assert.NotEmpty(t, sessionRef)
		assert.NotEmpty(t, resp["checkout_url"])
		assert.Nil(t, resp["booking"])
	})

	t.Run("ホールドが残席を消費する", func(t *testing.T) {
		rec := server.Request("GET", fmt.Sprintf("/api/v1/events/%s/availability", eventID), nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Equal(t, float64(1), resp["held"])
		assert.Equal(t, float64(0), resp["remaining"])
	})

	t.Run("別ユーザーのチェックアウトは満席で拒否", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/checkout",
			map[string]interface{}{"event_id": eventID},
			map[string]string{"X-User-ID": "e2e-other"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	webhookBody := map[string]interface{}{
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id": sessionRef,
				"metadata": map[string]interface{}{
					"event_id": eventID,
					"user_id":  userID,
				},
			},
		},
	}

	var bookingID string

	t.Run("決済完了Webhookで予約が確定する", func(t *testing.T) {
		webhookBody["data"].(map[string]interface{})["object"].(map[string]interface{})["id"] = sessionRef
		rec := server.Request("POST", "/api/v1/payments/webhook", webhookBody, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, unmarshalBody(rec, &resp))
		bookingID = resp["booking_id"]
		assert.Equal(t, "confirmed", resp["status"])
	})

	t.Run("Webhook再配送でも予約は1件のまま", func(t *testing.T) {
		rec := server.Request("POST", "/api/v1/payments/webhook", webhookBody, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, unmarshalBody(rec, &resp))
		assert.Equal(t, bookingID, resp["booking_id"])

		listRec := server.Request("GET", fmt.Sprintf("/api/v1/events/%s/bookings", eventID), nil, nil)
		require.Equal(t, http.StatusOK, listRec.Code)
		var list []map[string]interface{}
		require.NoError(t, unmarshalBody(listRec, &list))
		assert.Len(t, list, 1)
	})

	t.Run("消費後のセッション期限切れWebhookは無害", func(t *testing.T) {
		expiredBody := map[string]interface{}{
			"type": "checkout.session.expired",
			"data": map[string]interface{}{
				"object": map[string]interface{}{"id": sessionRef},
			},
		}
		rec := server.Request("POST", "/api/v1/payments/webhook", expiredBody, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		getRec := server.Request("GET", fmt.Sprintf("/api/v1/bookings/%s", bookingID), nil, nil)
		require.Equal(t, http.StatusOK, getRec.Code)
		var resp map[string]interface{}
		require.NoError(t, unmarshalBody(getRec, &resp))
		assert.Equal(t, "confirmed", resp["status"])
	})
}

// TestE2E_FreeEventCheckout は無料イベントのチェックアウトをテスト
func TestE2E_FreeEventCheckout(t *testing.T) {
	server := getTestServer(t)

	eventID := createPublishedEvent(t, server, 5, 0)

	rec := server.Request("POST", "/api/v1/checkout",
		map[string]interface{}{"event_id": eventID},
		map[string]string{"X-User-ID": "e2e-free-user"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, unmarshalBody(rec, &resp))

	// 決済を挟まず予約が直接返る
	require.NotNil(t, resp["booking"])
	booking := resp["booking"].(map[string]interface{})
	assert.Equal(t, "confirmed", booking["status"])
	assert.Nil(t, resp["session_ref"])
}
