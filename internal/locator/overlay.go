package locator

import (
	"context"

	"tilepilot/internal/logging"
)

// overlayScript drops a short-lived outline over a widget so a human
// watching the session can see what got picked up. The div removes
// itself; nothing persists in the page.
const overlayScript = `
(x, y, w, h, label) => {
	const div = document.createElement('div');
	div.style.cssText = 'position:fixed;z-index:2147483647;pointer-events:none;'
		+ 'border:2px solid #31a24c;border-radius:3px;'
		+ 'left:' + x + 'px;top:' + y + 'px;width:' + w + 'px;height:' + h + 'px;';
	const tag = document.createElement('span');
	tag.textContent = label;
	tag.style.cssText = 'position:absolute;top:-18px;left:0;background:#31a24c;'
		+ 'color:#fff;font:11px monospace;padding:1px 4px;border-radius:2px;';
	div.appendChild(tag);
	document.body.appendChild(div);
	setTimeout(() => div.remove(), 4000);
	return true;
}
`

// showOverlay outlines a widget when debug is on. Best effort: overlay
// failures never affect the solve.
func (l *Locator) showOverlay(ctx context.Context, w *Widget) {
	if !l.store.Settings().Debug {
		return
	}
	r := w.Facts.Rect
	if _, err := l.page.Eval(ctx, overlayScript, r.X, r.Y, r.W, r.H, w.Fingerprint[:8]); err != nil {
		logging.LocatorDebug("Overlay: %v", err)
	}
}
