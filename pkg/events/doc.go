/*
Package events provides an in-memory event broker for processing
notifications.

The broker is a lightweight pub/sub bus: the webhook surface publishes
dataset lifecycle events and the worker publishes job completions;
subscribers (the admin event stream, log tails) receive them over
buffered channels. Publishing never blocks: a subscriber that falls
behind misses events rather than stalling the producer.
*/
package events
