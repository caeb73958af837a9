//go:build cgo

package gstengine

/*
#cgo pkg-config: gstreamer-1.0 gstreamer-video-1.0 gstreamer-app-1.0
#include <stdlib.h>
#include <gst/gst.h>
#include <gst/app/gstappsink.h>
#include <gst/video/videooverlay.h>

static GstStateChangeReturn native_set_state(void *element, GstState state) {
	return gst_element_set_state(GST_ELEMENT(element), state);
}

static GstStateChangeReturn native_query_state(void *element, GstState *current, GstState *pending) {
	return gst_element_get_state(GST_ELEMENT(element), current, pending, 0);
}

static gboolean native_is_overlay(void *element) {
	return GST_IS_VIDEO_OVERLAY(element);
}

static gboolean native_is_app_sink(void *element) {
	return GST_IS_APP_SINK(element);
}

static void native_set_window_handle(void *element, guintptr handle) {
	gst_video_overlay_set_window_handle(GST_VIDEO_OVERLAY(element), handle);
}

static gboolean native_has_plugin(const char *name) {
	GstPlugin *plugin = gst_registry_find_plugin(gst_registry_get(), name);
	if (plugin == NULL) {
		return FALSE;
	}
	gst_object_unref(plugin);
	return TRUE;
}

static char *native_version(void) {
	return gst_version_string();
}

static void native_free(void *p) {
	g_free(p);
}
*/
import "C"

import (
	"unsafe"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// go-gst's SetState only reports an error, it drops ASYNC and NO_PREROLL,
// and it has no GstVideoOverlay binding. The few calls that need them go
// through these helpers on the raw object pointer.

func setState(obj unsafe.Pointer, target engine.State) engine.StateChangeReturn {
	return engine.StateChangeReturn(C.native_set_state(obj, C.GstState(target)))
}

func queryState(obj unsafe.Pointer) (engine.StateChangeReturn, engine.State, engine.State) {
	var current, pending C.GstState
	ret := C.native_query_state(obj, &current, &pending)
	return engine.StateChangeReturn(ret), engine.State(current), engine.State(pending)
}

func isOverlay(obj unsafe.Pointer) bool {
	return C.native_is_overlay(obj) != 0
}

func isAppSink(obj unsafe.Pointer) bool {
	return C.native_is_app_sink(obj) != 0
}

func setWindowHandle(obj unsafe.Pointer, handle uintptr) {
	C.native_set_window_handle(obj, C.guintptr(handle))
}

func hasPlugin(name string) bool {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return C.native_has_plugin(cname) != 0
}

func versionString() string {
	v := C.native_version()
	defer C.native_free(unsafe.Pointer(v))
	return C.GoString(v)
}
