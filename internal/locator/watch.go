package locator

import (
	"context"
	"encoding/json"
	"time"

	"tilepilot/internal/logging"
)

// watchPollInterval is how often the host drains the mutation counter.
const watchPollInterval = 250 * time.Millisecond

// watchScript installs a MutationObserver that counts insertions which
// look like challenge markup. The host polls and resets the counter.
const watchScript = `
() => {
	if (window.__tpWatch) return true;
	window.__tpWatch = true;
	window.__tpMutations = 0;

	const interesting = (node) => {
		if (!node || node.nodeType !== 1) return false;
		const cls = (typeof node.className === 'string') ? node.className : '';
		return node.tagName === 'IFRAME'
			|| cls.indexOf('recaptcha') !== -1
			|| cls.indexOf('rc-imageselect') !== -1
			|| (node.querySelector && node.querySelector('iframe, [class*="recaptcha"]') !== null);
	};

	const obs = new MutationObserver((mutations) => {
		for (const m of mutations) {
			for (const n of m.addedNodes) {
				if (interesting(n)) {
					window.__tpMutations++;
					return;
				}
			}
		}
	});
	obs.observe(document.body || document.documentElement, { childList: true, subtree: true });
	return true;
}
`

const drainMutationsScript = `
() => {
	const n = window.__tpMutations || 0;
	window.__tpMutations = 0;
	return n;
}
`

// Watch installs the mutation observer and re-scans after each burst
// of challenge-looking insertions, letting the page settle first.
// Bursts that land while a solve is in flight are dropped by Scan
// itself. Disabling the solver clears the processed set and suspends
// page polling until re-enabled. Blocks until ctx ends.
func (l *Locator) Watch(ctx context.Context) error {
	if _, err := l.page.Eval(ctx, watchScript); err != nil {
		return err
	}
	logging.Locator("Mutation watch started")

	// Initial pass picks up widgets already on the page.
	if err := l.Scan(ctx); err != nil {
		logging.LocatorError("Initial scan: %v", err)
	}

	enabled := l.store.Settings().Enabled
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Locator("Mutation watch stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		var err error
		enabled, err = l.watchTick(ctx, enabled)
		if err != nil {
			return err
		}
	}
}

// watchTick is one watch iteration: reconcile the enabled flag, then
// poll for mutation bursts and re-scan. A true->false transition
// clears the processed set so a re-enable starts fresh; while disabled
// the page is left untouched.
func (l *Locator) watchTick(ctx context.Context, wasEnabled bool) (bool, error) {
	enabled := l.store.Settings().Enabled
	if wasEnabled && !enabled {
		logging.Locator("Solver disabled, suspending watch")
		l.Clear()
	}
	if !enabled {
		return false, nil
	}
	if !wasEnabled {
		logging.Locator("Solver re-enabled, resuming watch")
	}

	raw, err := l.page.Eval(ctx, drainMutationsScript)
	if err != nil {
		logging.LocatorError("Mutation poll: %v", err)
		return true, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil || n == 0 {
		return true, nil
	}

	logging.LocatorDebug("%d challenge mutations, re-scan after settle", n)
	if err := l.wait(ctx, rescanSettle); err != nil {
		return true, err
	}
	if err := l.Scan(ctx); err != nil {
		logging.LocatorError("Re-scan: %v", err)
	}
	return true, nil
}
