package cot

import (
	"fmt"
	"time"
)

// Candidate is one (URL, report year, source kind) download target.
type Candidate struct {
	URL    string
	Year   int // zero for LATEST_WEEK
	Kind   SourceKind
	Member string // preferred file name inside a ZIP archive, if any
}

const cftcBase = "https://www.cftc.gov"

// AnnualCandidates returns the ordered history candidates, current year
// first, prior year as the single fallback. Pure function of its
// inputs; no I/O.
func AnnualCandidates(now time.Time, rt ReportType) []Candidate {
	year := now.Year()
	return []Candidate{
		annualCandidate(year, rt),
		annualCandidate(year-1, rt),
	}
}

// LatestCandidate returns the latest-week snapshot target. It always
// points at whatever is newest; there is no year fallback.
func LatestCandidate(rt ReportType) Candidate {
	return latestCandidate(rt)
}

func annualCandidate(year int, rt ReportType) Candidate {
	switch rt {
	case ReportDisaggregated:
		return Candidate{
			URL:    fmt.Sprintf("%s/files/dea/history/fut_disagg_txt_%d.zip", cftcBase, year),
			Year:   year,
			Kind:   SourceAnnualHistory,
			Member: "f_year.txt",
		}
	default:
		return Candidate{
			URL:    fmt.Sprintf("%s/files/dea/history/deacot%d.zip", cftcBase, year),
			Year:   year,
			Kind:   SourceAnnualHistory,
			Member: "annual.txt",
		}
	}
}

func latestCandidate(rt ReportType) Candidate {
	switch rt {
	case ReportDisaggregated:
		return Candidate{
			URL:  cftcBase + "/dea/newcot/f_disagg.txt",
			Kind: SourceLatestWeek,
		}
	default:
		return Candidate{
			URL:  cftcBase + "/dea/newcot/deafut.txt",
			Kind: SourceLatestWeek,
		}
	}
}
