package estimator

import (
	"fmt"
	"math"

	"github.com/DeepDiveOCR/ocr-safesign/internal/models"
)

// DetectOutliers flags records in the similar-area band whose price per
// area deviates from central by more than threshold (a ratio, 0.3 = 30%).
// It never changes the estimate itself.
func DetectOutliers(txs []models.Transaction, central, targetArea, tolerance, threshold float64) models.OutlierReport {
	report := models.OutlierReport{
		Central:   central,
		Tolerance: tolerance,
		Threshold: threshold,
		Outliers:  []models.OutlierEntry{},
	}

	band := models.WithinArea(txs, targetArea, tolerance)
	report.BandSize = len(band)
	if len(band) == 0 {
		report.Summary = "⚠️ 유사 평형 데이터가 없습니다. 전체 데이터로 탐지 불가."
		return report
	}
	if central <= 0 {
		report.Summary = "⚠️ 기준 시세가 없어 이상 거래를 탐지할 수 없습니다."
		return report
	}

	for _, tx := range band {
		ppa := tx.PricePerArea()
		dev := math.Abs(ppa-central) / central
		if dev > threshold {
			report.Outliers = append(report.Outliers, models.OutlierEntry{
				Transaction:  tx,
				PricePerArea: ppa,
				Deviation:    dev,
			})
		}
	}

	if len(report.Outliers) > 0 {
		report.Summary = fmt.Sprintf("⚠️ 유사 평형(%g±%g㎡) 거래 중 중앙값 대비 %d%% 이상 차이 나는 거래 %d건 발견!",
			targetArea, tolerance, int(math.Round(threshold*100)), len(report.Outliers))
	} else {
		report.Summary = "✅ 유사 평형 거래는 중앙값과 큰 차이가 없습니다."
	}
	return report
}
