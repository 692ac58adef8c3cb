// Command weathercli queries the weather cache from a terminal, sharing the
// cache directory and configuration of the HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"

	"github.com/kjstillabower/weather-cache-proxy/internal/cache"
	"github.com/kjstillabower/weather-cache-proxy/internal/client"
	"github.com/kjstillabower/weather-cache-proxy/internal/config"
	"github.com/kjstillabower/weather-cache-proxy/internal/models"
	"github.com/kjstillabower/weather-cache-proxy/internal/service"
)

const (
	itemsPerDay = 8
	maxDays     = client.MaxForecastCount / itemsPerDay
	defaultDays = 3
)

const usage = `Usage:
  weathercli current <city>
  weathercli forecast <city> [--days N]
  weathercli clear-cache [--expired]

Examples:
  weathercli current London
  weathercli forecast Paris --days 5
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc, err := newService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(run(ctx, svc, os.Args[1:], os.Stdout, os.Stderr))
}

func newService() (*service.WeatherService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, err
	}
	var store cache.Store
	if cfg.CacheBackend == config.BackendMemory {
		store = cache.NewMemoryStore(cfg.CacheTTL, nil)
	} else {
		fs, err := cache.NewFileStore(afero.NewOsFs(), cfg.CacheDir, cfg.CacheTTL, nil)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	return service.NewWeatherService(c, store), nil
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, svc *service.WeatherService, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return 0
	}
	cmd, rest := strings.ToLower(args[0]), args[1:]

	var err error
	switch cmd {
	case "current":
		err = runCurrent(ctx, svc, rest, stdout)
	case "forecast":
		err = runForecast(ctx, svc, rest, stdout, stderr)
	case "clear-cache":
		err = runClearCache(ctx, svc, rest, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\nAvailable commands: current, forecast, clear-cache\n", cmd)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runCurrent(ctx context.Context, svc *service.WeatherService, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("please specify a city name")
	}
	city := strings.Join(args, " ")
	res, err := svc.Current(ctx, models.ByName(city))
	if err != nil {
		return err
	}
	printCurrent(stdout, res)
	return nil
}

func runForecast(ctx context.Context, svc *service.WeatherService, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("forecast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	days := fs.IntP("days", "d", defaultDays, "number of days to show (1-5)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("please specify a city name")
	}
	city := strings.Join(fs.Args(), " ")
	if *days < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", *days)
	}
	if *days > maxDays {
		fmt.Fprintf(stderr, "Note: maximum %d days available, showing %d days\n", maxDays, maxDays)
		*days = maxDays
	}

	cnt := *days * itemsPerDay
	res, err := svc.Forecast(ctx, models.ByName(city), cnt)
	if err != nil {
		return err
	}
	printForecast(stdout, res, *days, cnt)
	return nil
}

func runClearCache(ctx context.Context, svc *service.WeatherService, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("clear-cache", flag.ContinueOnError)
	expiredOnly := fs.Bool("expired", false, "only remove expired entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *expiredOnly {
		n, err := svc.ClearExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Cleared %d expired cache %s\n", n, files(n))
		return nil
	}
	n, err := svc.ClearCache(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Cleared %d cache %s\n", n, files(n))
	return nil
}

func printCurrent(w io.Writer, res models.Cached[models.CurrentWeather]) {
	doc := res.Data
	fmt.Fprintf(w, "Current Weather - %s\n\n", doc.Name)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Metric\tValue")
	if doc.Main != nil {
		fmt.Fprintf(tw, "Temperature\t%s°C\n", num(doc.Main.Temp))
		fmt.Fprintf(tw, "Feels Like\t%s°C\n", num(doc.Main.FeelsLike))
	}
	fmt.Fprintf(tw, "Condition\t%s\n", doc.Condition())
	if len(doc.Weather) > 0 {
		fmt.Fprintf(tw, "Description\t%s\n", doc.Weather[0].Description)
	}
	if doc.Main != nil {
		fmt.Fprintf(tw, "Humidity\t%d%%\n", doc.Main.Humidity)
		fmt.Fprintf(tw, "Pressure\t%s hPa\n", num(doc.Main.Pressure))
	}
	fmt.Fprintf(tw, "Wind Speed\t%s m/s\n", num(doc.Wind.Speed))
	fmt.Fprintf(tw, "Visibility\t%d m\n", doc.Visibility)
	fmt.Fprintf(tw, "Cached\t%s\n", cachedLabel(res.Cached, res.CachedAt))
	_ = tw.Flush()
}

func printForecast(w io.Writer, res models.Cached[models.Forecast], days, cnt int) {
	name := ""
	if res.Data.City != nil {
		name = res.Data.City.Name
	}
	fmt.Fprintf(w, "%d-Day Forecast - %s\n\n", days, name)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date/Time\tTemp (°C)\tCondition\tHumidity\tRain %")
	items := res.Data.List
	if len(items) > cnt {
		items = items[:cnt]
	}
	for _, item := range items {
		when := item.DtTxt
		if when == "" {
			when = item.Time().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s°C\t%s\t%d%%\t%d%%\n",
			when, num(item.Temp()), item.Condition(), item.Humidity(), int(item.Pop*100))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\nCached: %s\n", cachedLabel(res.Cached, res.CachedAt))
}

func cachedLabel(cached bool, at *time.Time) string {
	if cached && at != nil {
		return "Yes (at " + at.Format(time.RFC3339) + ")"
	}
	return "No (fresh data)"
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func files(n int) string {
	if n == 1 {
		return "file"
	}
	return "files"
}
