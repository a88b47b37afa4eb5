package steam

import (
	"context"
	"os"
	"strconv"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownName is returned by AppIDByName for names neither the app list
// nor the corrections know.
var ErrUnknownName = errors.New("steam: unknown app name")

// LoadNameCorrections reads a YAML mapping of app name to app id. An empty
// path yields no corrections.
func LoadNameCorrections(path string) (map[string]int64, error) {
	if path == "" {
		return map[string]int64{}, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read name corrections")
	}
	corrections := map[string]int64{}
	if err := yaml.Unmarshal(buf, &corrections); err != nil {
		return nil, errors.Wrapf(serializer.ErrFormat, "%s: %v", path, err)
	}
	return corrections, nil
}

// AppNameIndex maps the name of every app in AllApps to its id, with the
// corrections file applied on top. When two apps share a name the one
// listed last wins. The index is built once per client.
func (c *Client) AppNameIndex(ctx context.Context) (map[string]int64, error) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	if c.index != nil {
		return c.index, nil
	}
	apps, err := c.AllApps(ctx)
	if err != nil {
		return nil, err
	}
	corrections, err := LoadNameCorrections(c.nameCorrections)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int64, len(apps)+len(corrections))
	for _, app := range apps {
		index[app.Name] = app.AppID
	}
	for name, id := range corrections {
		index[name] = id
	}
	c.logger.Debug("app name index: %d apps, %d corrections", len(apps), len(corrections))
	c.index = index
	return index, nil
}

// AppIDByName resolves the exact name of an app to its id.
func (c *Client) AppIDByName(ctx context.Context, name string) (int64, error) {
	index, err := c.AppNameIndex(ctx)
	if err != nil {
		return 0, err
	}
	id, ok := index[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownName, "%q", name)
	}
	return id, nil
}

// ResolveApp accepts either a numeric app id or an app name.
func (c *Client) ResolveApp(ctx context.Context, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if id <= 0 {
			return 0, errors.Newf("invalid app id %q", arg)
		}
		return id, nil
	}
	return c.AppIDByName(ctx, arg)
}
