package bridge

import (
	"fmt"

	"tilepilot/internal/player"
)

// frameScript is the cooperating script injected into the challenge
// frame. It keeps an outbox on window that the host drains, mirrors the
// Player's timing contract for in-frame clicks, and debounces mutation
// bursts to one challenge-data snapshot each.
var frameScript = fmt.Sprintf(frameScriptTemplate,
	player.JitterPx,
	player.HoldMin.Milliseconds(), player.HoldMax.Milliseconds(),
	player.GapMin.Milliseconds(), player.GapMax.Milliseconds(),
	player.SettleDelay.Milliseconds(),
)

const frameScriptTemplate = `
() => {
	if (window.__tpBridge) return true;
	window.__tpBridge = true;
	window.__tpOutbox = [];
	const post = (msg) => window.__tpOutbox.push(msg);

	const JITTER = %d;
	const HOLD_MIN = %d, HOLD_MAX = %d;
	const GAP_MIN = %d, GAP_MAX = %d;
	const SETTLE = %d;

	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
	const between = (lo, hi) => lo + Math.random() * (hi - lo);
	const jitter = () => Math.random() * (2 * JITTER) - JITTER;

	const promptText = () => {
		const el = document.querySelector('.rc-imageselect-desc-wrapper strong')
			|| document.querySelector('.rc-imageselect-desc strong')
			|| document.querySelector('.rc-imageselect-instructions strong');
		return el ? el.textContent.trim() : '';
	};

	const tileElements = () =>
		Array.from(document.querySelectorAll('td.rc-imageselect-tile, .rc-imageselect-tile'));

	const tileDataURLs = () => {
		const out = [];
		for (const td of tileElements()) {
			const img = td.querySelector('img');
			if (!img || !img.complete) continue;
			const c = document.createElement('canvas');
			c.width = img.naturalWidth || img.width;
			c.height = img.naturalHeight || img.height;
			try {
				c.getContext('2d').drawImage(img, 0, 0);
				out.push(c.toDataURL('image/png'));
			} catch (e) {
				// Tainted canvas: tile unusable, skip it.
			}
		}
		return out;
	};

	const snapshot = () => {
		const tiles = tileDataURLs();
		post({
			kind: 'challenge-data',
			prompt: promptText(),
			tiles: tiles,
			hasChallenge: tiles.length > 0,
			largeGrid: document.querySelector('table.rc-imageselect-table-44') !== null,
		});
	};

	const clickAt = async (el, x, y) => {
		const opts = { bubbles: true, cancelable: true, clientX: x, clientY: y };
		el.dispatchEvent(new MouseEvent('mousedown', opts));
		await sleep(between(HOLD_MIN, HOLD_MAX));
		el.dispatchEvent(new MouseEvent('mouseup', opts));
		el.dispatchEvent(new MouseEvent('click', opts));
	};

	const applySolution = async (decisions) => {
		const tiles = tileElements();
		let clicked = 0;
		for (let i = 0; i < decisions.length && i < tiles.length; i++) {
			if (!decisions[i]) continue;
			if (clicked > 0) await sleep(between(GAP_MIN, GAP_MAX));
			const r = tiles[i].getBoundingClientRect();
			await clickAt(tiles[i],
				r.left + r.width / 2 + jitter(),
				r.top + r.height / 2 + jitter());
			clicked++;
		}
		await sleep(SETTLE + clicked * 100);
		const submit = document.querySelector('#recaptcha-verify-button')
			|| document.querySelector("button[id*='verify']")
			|| document.querySelector("button[type='submit']");
		if (submit) submit.click();
	};

	window.__tpDeliver = (msg) => {
		switch (msg.kind) {
			case 'extract-request':
				snapshot();
				break;
			case 'apply-solution':
				applySolution(msg.decisions || []);
				break;
			default:
				throw new Error('unknown host message kind: ' + msg.kind);
		}
		return true;
	};

	let pending = null;
	const obs = new MutationObserver(() => {
		if (pending) clearTimeout(pending);
		pending = setTimeout(() => { pending = null; snapshot(); }, 400);
	});
	obs.observe(document.body || document.documentElement, { childList: true, subtree: true });

	post({ kind: 'frame-ready', url: location.href });
	return true;
}
`

// drainScript empties the frame outbox and returns its contents.
const drainScript = `
() => {
	const out = window.__tpOutbox || [];
	window.__tpOutbox = [];
	return out;
}
`

// deliverScript hands one host message to the installed script.
const deliverScript = `
(msg) => {
	if (!window.__tpDeliver) throw new Error('bridge not installed');
	return window.__tpDeliver(msg);
}
`
