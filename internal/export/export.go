package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"proxypool/internal/model"
)

// Output formats
const (
	FormatSimple = "simple"
	FormatText   = "text"
	FormatURL    = "url"
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatTable  = "table"
)

var ErrUnknownFormat = errors.New("unknown format")

var csvHeader = []string{"ip", "port", "protocol", "country", "success_rate", "speed"}

// Write renders proxies in the named format. Line formats end every record
// with a newline.
func Write(w io.Writer, format string, proxies []*model.Proxy) error {
	switch strings.ToLower(format) {
	case FormatSimple, FormatText:
		return writeLines(w, proxies, (*model.Proxy).Address)
	case FormatURL:
		return writeLines(w, proxies, (*model.Proxy).URL)
	case FormatCSV:
		return writeCSV(w, proxies)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if proxies == nil {
			proxies = []*model.Proxy{}
		}
		return enc.Encode(proxies)
	case FormatTable:
		return writeTable(w, proxies)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// String is Write into a string, without the trailing newline.
func String(format string, proxies []*model.Proxy) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, format, proxies); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func writeLines(w io.Writer, proxies []*model.Proxy, line func(*model.Proxy) string) error {
	for _, p := range proxies {
		if _, err := fmt.Fprintln(w, line(p)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, proxies []*model.Proxy) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range proxies {
		rec := []string{
			p.IP,
			strconv.Itoa(p.Port),
			protocol(p),
			p.Country,
			fmt.Sprintf("%.1f", p.SuccessRate()*100),
			fmt.Sprintf("%.2f", p.LatencySeconds()),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, proxies []*model.Proxy) error {
	fmt.Fprintf(w, "%-20s %-8s %-10s %-10s %-10s\n", "IP", "Port", "Protocol", "Success", "Speed")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, p := range proxies {
		fmt.Fprintf(w, "%-20s %-8d %-10s %6.1f%% %8.2fs\n",
			p.IP, p.Port, protocol(p), p.SuccessRate()*100, p.LatencySeconds())
	}
	_, err := fmt.Fprintf(w, "\nShowing %d proxies\n", len(proxies))
	return err
}

func protocol(p *model.Proxy) string {
	if p.Protocol == "" {
		return model.ProtocolHTTP
	}
	return p.Protocol
}

// View is the public JSON shape of a proxy served by the API.
type View struct {
	IP          string   `json:"ip"`
	Port        int      `json:"port"`
	Protocol    string   `json:"protocol"`
	Country     *string  `json:"country"`
	SuccessRate float64  `json:"success_rate"`
	Speed       *float64 `json:"speed"`
	URL         string   `json:"url"`
}

func NewView(p *model.Proxy) View {
	v := View{
		IP:          p.IP,
		Port:        p.Port,
		Protocol:    protocol(p),
		SuccessRate: model.Round(p.SuccessRate(), 2),
		Speed:       p.Latency,
		URL:         p.URL(),
	}
	if p.Country != "" {
		c := p.Country
		v.Country = &c
	}
	return v
}

func Views(proxies []*model.Proxy) []View {
	out := make([]View, 0, len(proxies))
	for _, p := range proxies {
		out = append(out, NewView(p))
	}
	return out
}
