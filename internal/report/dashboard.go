// Package report builds the dashboard and the spreadsheet exports.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"konsinyasi-backend/internal/apperror"
	"konsinyasi-backend/internal/models"
	"konsinyasi-backend/internal/response"
)

type ConsignmentCounts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
	Done   int64 `json:"done"`
}

type RevenueTotals struct {
	AllTime   decimal.Decimal `json:"all_time"`
	ThisMonth decimal.Decimal `json:"this_month"`
	Today     decimal.Decimal `json:"today"`
}

type ChartPoint struct {
	Label    string          `json:"label"` // bucket start, YYYY-MM-DD
	Sold     int             `json:"sold"`
	Returned int             `json:"returned"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type Dashboard struct {
	Consignments   ConsignmentCounts `json:"consignments"`
	Stores         int64             `json:"stores"`
	Products       int64             `json:"products"`
	ItemsConsigned int               `json:"items_consigned"`
	ItemsSold      int               `json:"items_sold"`
	ItemsReturned  int               `json:"items_returned"`
	ItemsAtStores  int               `json:"items_at_stores"`
	Revenue        RevenueTotals     `json:"revenue"`
	Period         string            `json:"period"` // daily | weekly | monthly
	From           string            `json:"from"`
	To             string            `json:"to"`
	Points         []ChartPoint      `json:"points"`
}

type saleRow struct {
	TransactionDate time.Time
	Sold            int
	Returned        int
	UnitPrice       decimal.Decimal
}

// window returns [start, end) for count buckets of period ending today.
func window(period string, count int, now time.Time) (string, time.Time, time.Time) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch period {
	case "weekly":
		monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
		return period, monday.AddDate(0, 0, -7*(count-1)), monday.AddDate(0, 0, 7)
	case "monthly":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return period, first.AddDate(0, -(count - 1), 0), first.AddDate(0, 1, 0)
	default:
		return "daily", today.AddDate(0, 0, -(count - 1)), today.AddDate(0, 0, 1)
	}
}

func bucket(period string, t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	switch period {
	case "weekly":
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case "monthly":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return day
	}
}

// BuildDashboard totals all-time revenue in SQL and sums the chart window and
// the current month in Go with decimal.
func BuildDashboard(ctx context.Context, db *gorm.DB, period string, count int, now time.Time) (*Dashboard, error) {
	db = db.WithContext(ctx)
	d := &Dashboard{
		Revenue: RevenueTotals{AllTime: decimal.Zero, ThisMonth: decimal.Zero, Today: decimal.Zero},
	}

	if err := db.Model(&models.Consignment{}).Count(&d.Consignments.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Consignment{}).Where("status = ?", models.ConsignmentActive).Count(&d.Consignments.Active).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Consignment{}).Where("status = ?", models.ConsignmentDone).Count(&d.Consignments.Done).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Store{}).Count(&d.Stores).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).Count(&d.Products).Error; err != nil {
		return nil, err
	}

	var items struct {
		Qty      int
		Sales    int
		Returned int
	}
	if err := db.Table("product_items AS pi").
		Select("COALESCE(SUM(pi.qty), 0) AS qty, COALESCE(SUM(pi.sales), 0) AS sales, COALESCE(SUM(pi.returned), 0) AS returned").
		Joins("JOIN consignments c ON c.id = pi.consignment_id").
		Where("pi.deleted_at IS NULL AND c.deleted_at IS NULL").
		Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("sum product items: %w", err)
	}
	d.ItemsConsigned = items.Qty
	d.ItemsSold = items.Sales
	d.ItemsReturned = items.Returned
	d.ItemsAtStores = items.Qty - items.Sales - items.Returned

	var allTime struct{ Revenue decimal.Decimal }
	if err := db.Table("transaction_items AS ti").
		Select("COALESCE(SUM(ti.sold * ti.unit_price), 0) AS revenue").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Joins("JOIN consignments c ON c.id = t.consignment_id").
		Where("t.deleted_at IS NULL AND c.deleted_at IS NULL").
		Scan(&allTime).Error; err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	d.Revenue.AllTime = allTime.Revenue

	loc := now.Location()
	period, start, end := window(period, count, now)
	d.Period = period
	d.From = start.Format("2006-01-02")
	d.To = end.AddDate(0, 0, -1).Format("2006-01-02")

	todayStart := bucket("daily", now, loc)
	monthStart := bucket("monthly", now, loc)

	// Only the chart window and the current month are read row by row.
	from, to := start, end
	if monthStart.Before(from) {
		from = monthStart
	}
	if monthEnd := monthStart.AddDate(0, 1, 0); monthEnd.After(to) {
		to = monthEnd
	}

	var rows []saleRow
	if err := db.Table("transaction_items AS ti").
		Select("t.transaction_date, ti.sold, ti.returned, ti.unit_price").
		Joins("JOIN transactions t ON t.id = ti.transaction_id").
		Joins("JOIN consignments c ON c.id = t.consignment_id").
		Where("t.deleted_at IS NULL AND c.deleted_at IS NULL").
		Where("t.transaction_date >= ? AND t.transaction_date < ?", from, to).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	points := map[time.Time]*ChartPoint{}
	for b := start; b.Before(end); b = nextBucket(period, b) {
		points[b] = &ChartPoint{Label: b.Format("2006-01-02"), Revenue: decimal.Zero}
	}

	for _, r := range rows {
		amount := r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Sold)))

		day := bucket("daily", r.TransactionDate, loc)
		if !day.Before(monthStart) && day.Before(monthStart.AddDate(0, 1, 0)) {
			d.Revenue.ThisMonth = d.Revenue.ThisMonth.Add(amount)
		}
		if day.Equal(todayStart) {
			d.Revenue.Today = d.Revenue.Today.Add(amount)
		}

		if p, ok := points[bucket(period, r.TransactionDate, loc)]; ok {
			p.Sold += r.Sold
			p.Returned += r.Returned
			p.Revenue = p.Revenue.Add(amount)
		}
	}

	d.Points = make([]ChartPoint, 0, len(points))
	for _, p := range points {
		d.Points = append(d.Points, *p)
	}
	sort.Slice(d.Points, func(i, j int) bool { return d.Points[i].Label < d.Points[j].Label })
	return d, nil
}

func nextBucket(period string, b time.Time) time.Time {
	switch period {
	case "weekly":
		return b.AddDate(0, 0, 7)
	case "monthly":
		return b.AddDate(0, 1, 0)
	default:
		return b.AddDate(0, 0, 1)
	}
}

// GET /api/dashboard?period=daily&count=7
func DashboardHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		period := c.Query("period", "daily")
		count := c.QueryInt("count", 0)
		if count == 0 {
			switch period {
			case "weekly":
				count = 8
			case "monthly":
				count = 12
			default:
				count = 7
			}
		}
		if count < 1 || count > 366 {
			return apperror.Validation("count must be between 1 and 366").WithDetail("count", "between:1,366")
		}

		d, err := BuildDashboard(c.UserContext(), db, period, count, time.Now())
		if err != nil {
			return err
		}
		return response.OK(c, fiber.StatusOK, "dashboard", d)
	}
}
